package repository

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// String renders a fixed, human-readable report of the record: header,
// identification fields, word-wrapped description and sorted file listing.
// Deterministic for a given document; meant for display, not parsing.
func (r *Record) String() string {
	m := r.detail.Metadata

	names := []string{}
	for _, creator := range m.Creators {
		names = append(names, creator.Name)
	}
	authors := strings.Join(names, "; ")

	files := make([]string, 0, len(r.detail.Files))
	keys := make([]string, 0, len(r.detail.Files))
	byKey := map[string]string{}
	for _, file := range r.detail.Files {
		keys = append(keys, file.Key)
		byKey[file.Key] = file.Links.Self
	}
	sort.Strings(keys)
	for _, key := range keys {
		files = append(files, fmt.Sprintf("- %s : %s", key, byKey[key]))
	}

	description := wrap(stripHTML(m.Description), 79)

	lines := []string{
		fmt.Sprintf("%s - %s", m.Title, m.Version),
		strings.Repeat("=", len(m.Title)+3+len(m.Version)),
		"",
		fmt.Sprintf("Record ID        : %s", r.ID()),
		fmt.Sprintf("Authors          : %s", authors),
		fmt.Sprintf("License          : %s", m.License.Id),
		fmt.Sprintf("DOI              : %s", m.DOI),
		fmt.Sprintf("Publication Date : %s", m.PublicationDate),
		fmt.Sprintf("URL              : %s", r.detail.Links.Html),
		"",
		"Description",
		"-----------",
		"",
		description,
		"",
		"Files",
		"-----",
		"",
		strings.Join(files, "\n"),
	}

	return strings.Join(lines, "\n")
}

// stripHTML drops markup from text, normalising "&nbsp;" and paragraph
// breaks to plain spaces first.
func stripHTML(text string) string {
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "\n\n", " ")

	parts := []string{}
	tokenizer := html.NewTokenizer(strings.NewReader(text))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(parts, "")
		case html.TextToken:
			parts = append(parts, tokenizer.Token().Data)
		}
	}
}

// wrap greedily word-wraps text to the given width.
func wrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	lines := []string{}
	line := words[0]
	for _, word := range words[1:] {
		if width < len(line)+1+len(word) {
			lines = append(lines, line)
			line = word
			continue
		}
		line = line + " " + word
	}
	lines = append(lines, line)

	return strings.Join(lines, "\n")
}
