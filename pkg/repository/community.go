package repository

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spectradata/datasets/pkg/api/types/records"
	"github.com/spectradata/datasets/pkg/configuration"
	"github.com/spectradata/datasets/pkg/rest"
)

// ErrCacheMiss marks a community whose metadata could be resolved neither
// over the network nor from the local cache files. There is no further
// fallback.
var ErrCacheMiss = errors.New("community metadata is not available locally")

// Community is a named catalog of Records, keyed by record id. Every
// contained Record shares the Community's Configuration.
type Community struct {
	community map[string]any
	records   map[string]any
	index     map[string]*Record
	conf      configuration.Configuration
}

// NewCommunity constructs a Community from raw community and records-query
// documents.
func NewCommunity(community map[string]any, recordsDoc map[string]any, conf configuration.Configuration, opts ...Option) (*Community, error) {
	hits, err := records.ParseSearch(recordsDoc)
	if err != nil {
		return nil, err
	}

	index := map[string]*Record{}
	for _, hit := range hits {
		record, err := New(hit, conf, opts...)
		if err != nil {
			return nil, err
		}
		index[record.ID()] = record
	}

	return &Community{
		community: community,
		records:   recordsDoc,
		index:     index,
		conf:      conf,
	}, nil
}

// communityCache returns the paths of the two persisted metadata documents
// of a community: <id>-community.json and <id>-records.json.
func communityCache(conf configuration.Configuration, id string) (string, string) {
	return filepath.Join(conf.Repository, fmt.Sprintf("%s-community.json", id)),
		filepath.Join(conf.Repository, fmt.Sprintf("%s-records.json", id))
}

// CommunityFromID fetches the community and records-query documents for
// the given community id and constructs a Community.
//
// On network or parse failure it falls back to the locally persisted
// copies of the same two documents; when those are missing too, it fails
// with ErrCacheMiss wrapping the fetch error. On success by either path,
// both documents are persisted as indented, key-sorted JSON.
func CommunityFromID(ctx context.Context, id string, conf configuration.Configuration, opts ...Option) (*Community, error) {
	o := newOptions(opts)

	conf.Community = id
	if err := os.MkdirAll(conf.Repository, os.FileMode(0755)); err != nil {
		return nil, err
	}
	communityFile, recordsFile := communityCache(conf, id)

	client, err := rest.NewClient(conf.APIRoot, o.transferOptions()...)
	if err != nil {
		return nil, err
	}

	communityDoc, err := client.GetCommunity(ctx, id)
	var recordsDoc map[string]any
	if err == nil {
		recordsDoc, err = client.FindRecords(ctx, id)
	}
	if err != nil {
		o.logger.Printf(
			"retrieving the %q community data failed, attempting to use cached local data...",
			id,
		)
		cachedCommunity, communityErr := loadJSON(communityFile)
		cachedRecords, recordsErr := loadJSON(recordsFile)
		if communityErr != nil || recordsErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrCacheMiss, err)
		}
		communityDoc, recordsDoc = cachedCommunity, cachedRecords
	}

	if err := persistJSON(communityFile, communityDoc); err != nil {
		return nil, err
	}
	if err := persistJSON(recordsFile, recordsDoc); err != nil {
		return nil, err
	}

	return NewCommunity(communityDoc, recordsDoc, conf, opts...)
}

func (c *Community) Configuration() configuration.Configuration {
	return c.conf
}

// Data returns the raw community document as fetched.
func (c *Community) Data() map[string]any {
	return c.community
}

// Get returns the Record with the given id.
func (c *Community) Get(id string) (*Record, bool) {
	record, ok := c.index[id]
	return record, ok
}

// Contains reports whether the community holds a Record with the given id.
func (c *Community) Contains(id string) bool {
	_, ok := c.index[id]
	return ok
}

// IDs returns the record ids, sorted.
func (c *Community) IDs() []string {
	ids := make([]string, 0, len(c.index))
	for id := range c.index {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Community) Len() int {
	return len(c.index)
}

// Records returns a copy of the id-to-Record mapping.
func (c *Community) Records() map[string]*Record {
	return maps.Clone(c.index)
}

// Synced reports whether every contained Record is synced. An empty
// community is vacuously synced.
func (c *Community) Synced() bool {
	for _, record := range c.index {
		if !record.Synced() {
			return false
		}
	}
	return true
}

// Pull pulls every contained Record in turn. The first failure propagates
// immediately; records are not pulled past it.
func (c *Community) Pull(ctx context.Context, opts ...Option) error {
	if err := os.MkdirAll(c.conf.Repository, os.FileMode(0755)); err != nil {
		return err
	}

	for _, id := range c.IDs() {
		if err := c.index[id].Pull(ctx, opts...); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the configured repository root, tolerating read-only
// files.
//
// Note that this removes the whole cache root, not only this community's
// records.
func (c *Community) Remove() error {
	return removeAll(c.conf.Repository)
}

// String renders a fixed report: community id header, dataset and synced
// counts, community URL, then one checkbox line per dataset sorted by
// title.
func (c *Community) String() string {
	community, _ := records.ParseCommunity(c.community)

	datasets := make([]*Record, 0, len(c.index))
	synced := 0
	for _, record := range c.index {
		datasets = append(datasets, record)
		if record.Synced() {
			synced += 1
		}
	}
	sort.Slice(datasets, func(i, j int) bool { return datasets[i].Title() < datasets[j].Title() })

	listing := make([]string, 0, len(datasets))
	for _, record := range datasets {
		check := " "
		if record.Synced() {
			check = "x"
		}
		listing = append(listing, fmt.Sprintf("[%s] %s : %s", check, record.ID(), record.Title()))
	}

	lines := []string{
		c.conf.Community,
		strings.Repeat("=", len(c.conf.Community)),
		"",
		fmt.Sprintf("Datasets : %d", c.Len()),
		fmt.Sprintf("Synced   : %d", synced),
		fmt.Sprintf("URL      : %s", community.Links.Html),
		"",
		"Datasets",
		"--------",
		"",
		strings.Join(listing, "\n"),
	}

	return strings.Join(lines, "\n")
}
