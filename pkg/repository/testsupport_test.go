package repository_test

import (
	"archive/zip"
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spectradata/datasets/pkg/configuration"
	"github.com/spectradata/datasets/pkg/repository"
)

// fixtureFile is one file of a fixture record, served under
// /files/<record id>/<key>/content with an "md5:..." checksum.
type fixtureFile struct {
	key     string
	content []byte
}

type fixtureRecord struct {
	id    string
	title string
	files []fixtureFile
}

// fakeArchive is an in-process stand-in for the archival service: record
// and community metadata under /api/..., file content under /files/... and
// free-standing payloads under /mirror/....
type fakeArchive struct {
	community string
	records   []fixtureRecord
	mirror    map[string][]byte
	server    *httptest.Server
}

func newFakeArchive(t *testing.T, community string, records ...fixtureRecord) *fakeArchive {
	f := &fakeArchive{
		community: community,
		records:   records,
		mirror:    map[string][]byte{},
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeArchive) apiRoot() string {
	return f.server.URL + "/api"
}

func (f *fakeArchive) handle(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case strings.HasPrefix(path, "/files/"):
		rest := strings.TrimSuffix(strings.TrimPrefix(path, "/files/"), "/content")
		id, key, found := strings.Cut(rest, "/")
		if !found {
			http.NotFound(w, r)
			return
		}
		for _, rec := range f.records {
			if rec.id != id {
				continue
			}
			for _, file := range rec.files {
				if file.key == key {
					w.Write(file.content)
					return
				}
			}
		}
		http.NotFound(w, r)

	case strings.HasPrefix(path, "/mirror/"):
		name := strings.TrimSuffix(strings.TrimPrefix(path, "/mirror/"), "/content")
		if content, ok := f.mirror[name]; ok {
			w.Write(content)
			return
		}
		http.NotFound(w, r)

	case path == "/api/records/":
		hits := []any{}
		for _, rec := range f.records {
			hits = append(hits, f.recordDoc(rec))
		}
		writeJSON(w, map[string]any{"hits": map[string]any{"hits": hits}})

	case strings.HasPrefix(path, "/api/records/"):
		id := strings.TrimPrefix(path, "/api/records/")
		for _, rec := range f.records {
			if rec.id == id {
				writeJSON(w, f.recordDoc(rec))
				return
			}
		}
		http.NotFound(w, r)

	case path == "/api/communities/"+f.community:
		writeJSON(w, map[string]any{
			"id":    f.community,
			"links": map[string]any{"html": f.server.URL + "/communities/" + f.community},
		})

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeArchive) recordDoc(rec fixtureRecord) map[string]any {
	files := []any{}
	for _, file := range rec.files {
		files = append(files, map[string]any{
			"key":      file.key,
			"checksum": "md5:" + md5hex(file.content),
			"links": map[string]any{
				"self": f.server.URL + "/files/" + rec.id + "/" + file.key,
			},
		})
	}
	return map[string]any{
		"id": rec.id,
		"metadata": map[string]any{
			"title":            rec.title,
			"version":          "1.0.0",
			"doi":              "10.5281/zenodo." + rec.id,
			"publication_date": "2019-06-14",
			"description":      "<p>Measured spectral data for testing.</p>",
			"creators":         []any{map[string]any{"name": "Jiang, Jun"}},
			"license":          map[string]any{"id": "CC-BY-4.0"},
		},
		"links": map[string]any{"html": f.server.URL + "/records/" + rec.id},
		"files": files,
	}
}

func writeJSON(w http.ResponseWriter, doc any) {
	buf, _ := json.Marshal(doc)
	w.Header().Set("Content-Type", "application/json")
	w.Write(buf)
}

func (f *fakeArchive) configuration(t *testing.T) configuration.Configuration {
	return configuration.Configuration{
		Repository: t.TempDir(),
		APIRoot:    f.apiRoot(),
		Community:  f.community,
	}.WithDefaults()
}

func quietOptions(extra ...repository.Option) []repository.Option {
	opts := []repository.Option{
		repository.WithLogger(log.New(io.Discard, "", 0)),
		repository.WithProgressOutput(io.Discard),
		repository.WithBackoffInterval(time.Millisecond),
	}
	return append(opts, extra...)
}

func md5hex(payload []byte) string {
	sum := md5.Sum(payload)
	return hex.EncodeToString(sum[:])
}

// zipFixture builds an in-memory zip archive from name-to-content entries.
func zipFixture(t *testing.T, entries map[string]string) []byte {
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for name, content := range entries {
		entry, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func manifestFixture(t *testing.T, urls map[string]string) []byte {
	buf, err := json.Marshal(map[string]any{"urls": urls})
	if err != nil {
		t.Fatal(err)
	}
	return buf
}
