// Package records holds typed views over the JSON documents served by a
// Zenodo-style archival service.
//
// The raw documents are kept as map[string]any by their owners so that they
// can be persisted verbatim; these types cover only the fields the client
// reads.
package records

import (
	"encoding/json"
	"strings"
)

// ID is a record identifier. The archival service serves it as a JSON
// number in some documents and as a string in others.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

type Creator struct {
	Name string `json:"name"`
}

type License struct {
	Id string `json:"id"`
}

type Links struct {
	// Self is the download endpoint of a file entry.
	Self string `json:"self,omitempty"`

	// Html is the human-facing page of a record or community.
	Html string `json:"html,omitempty"`
}

// File is one entry of a record's file listing.
type File struct {
	Key string `json:"key"`

	// Checksum is formatted as "<algo>:<hex>".
	Checksum string `json:"checksum"`

	Links Links `json:"links"`
}

// Digest returns the hex digest part of f's "<algo>:<hex>" checksum.
func (f File) Digest() string {
	return Digest(f.Checksum)
}

// Digest returns the hex digest part of a "<algo>:<hex>" checksum string.
// A bare digest is returned as-is.
func Digest(checksum string) string {
	if i := strings.LastIndex(checksum, ":"); 0 <= i {
		return checksum[i+1:]
	}
	return checksum
}

type Metadata struct {
	Title           string    `json:"title"`
	Version         string    `json:"version"`
	DOI             string    `json:"doi"`
	PublicationDate string    `json:"publication_date"`
	Description     string    `json:"description"`
	Creators        []Creator `json:"creators"`
	License         License   `json:"license"`
}

// Detail is the typed view of a record document.
type Detail struct {
	Id       ID       `json:"id"`
	Metadata Metadata `json:"metadata"`
	Links    Links    `json:"links"`
	Files    []File   `json:"files"`
}

// Community is the typed view of a community document.
type Community struct {
	Links Links `json:"links"`
}

// Manifest is the content of a urls-manifest file: a mapping from original
// download URLs to "<algo>:<hex>" checksums.
type Manifest struct {
	URLS map[string]string `json:"urls"`
}

// Parse builds the typed view of a raw record document.
func Parse(doc map[string]any) (Detail, error) {
	detail := Detail{}
	err := reparse(doc, &detail)
	return detail, err
}

// ParseCommunity builds the typed view of a raw community document.
func ParseCommunity(doc map[string]any) (Community, error) {
	community := Community{}
	err := reparse(doc, &community)
	return community, err
}

// ParseSearch extracts the raw record documents from a records-query
// response ({"hits": {"hits": [...]}}).
func ParseSearch(doc map[string]any) ([]map[string]any, error) {
	search := struct {
		Hits struct {
			Hits []map[string]any `json:"hits"`
		} `json:"hits"`
	}{}
	if err := reparse(doc, &search); err != nil {
		return nil, err
	}
	return search.Hits.Hits, nil
}

func reparse(doc map[string]any, into any) error {
	buf, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, into)
}
