package records_test

import (
	"encoding/json"
	"testing"

	"github.com/spectradata/datasets/pkg/api/types/records"
	"github.com/spectradata/datasets/pkg/utils/try"
)

func TestParse(t *testing.T) {
	t.Run("it reads a record document with a numeric id", func(t *testing.T) {
		doc := map[string]any{}
		try.To(0, json.Unmarshal([]byte(`{
			"id": 3245883,
			"metadata": {
				"title": "Camera Spectral Sensitivity Database",
				"version": "1.0.0",
				"doi": "10.5281/zenodo.3245883",
				"publication_date": "2019-06-14",
				"description": "<p>Camera data</p>",
				"creators": [{"name": "Jiang, Jun"}, {"name": "Liu, Dengyu"}],
				"license": {"id": "CC-BY-4.0"}
			},
			"links": {"html": "https://zenodo.org/records/3245883"},
			"files": [
				{
					"key": "camspec_database.txt",
					"checksum": "md5:0c62ad5664e2fa2e04a3f6a9a9510780",
					"links": {"self": "https://zenodo.org/api/records/3245883/files/camspec_database.txt"}
				}
			]
		}`), &doc)).OrFatal(t)

		detail := try.To(records.Parse(doc)).OrFatal(t)

		if detail.Id.String() != "3245883" {
			t.Errorf("unexpected id: %s", detail.Id)
		}
		if detail.Metadata.Title != "Camera Spectral Sensitivity Database" {
			t.Errorf("unexpected title: %s", detail.Metadata.Title)
		}
		if len(detail.Metadata.Creators) != 2 || detail.Metadata.Creators[0].Name != "Jiang, Jun" {
			t.Errorf("unexpected creators: %+v", detail.Metadata.Creators)
		}
		if len(detail.Files) != 1 {
			t.Fatalf("unexpected files: %+v", detail.Files)
		}
		if got := detail.Files[0].Digest(); got != "0c62ad5664e2fa2e04a3f6a9a9510780" {
			t.Errorf("unexpected digest: %s", got)
		}
	})

	t.Run("it accepts a string id too", func(t *testing.T) {
		detail := try.To(records.Parse(map[string]any{"id": "abc-123"})).OrFatal(t)
		if detail.Id.String() != "abc-123" {
			t.Errorf("unexpected id: %s", detail.Id)
		}
	})
}

func TestDigest(t *testing.T) {
	for checksum, want := range map[string]string{
		"md5:0c62ad5664e2fa2e04a3f6a9a9510780": "0c62ad5664e2fa2e04a3f6a9a9510780",
		"sha1:da39a3ee":                        "da39a3ee",
		"0c62ad5664e2fa2e04a3f6a9a9510780":    "0c62ad5664e2fa2e04a3f6a9a9510780",
	} {
		if got := records.Digest(checksum); got != want {
			t.Errorf("Digest(%q) = %q, want %q", checksum, got, want)
		}
	}
}

func TestParseSearch(t *testing.T) {
	t.Run("it extracts hits from a records query response", func(t *testing.T) {
		doc := map[string]any{
			"hits": map[string]any{
				"hits": []any{
					map[string]any{"id": "1"},
					map[string]any{"id": "2"},
				},
			},
		}

		hits := try.To(records.ParseSearch(doc)).OrFatal(t)
		if len(hits) != 2 {
			t.Errorf("unexpected hits: %+v", hits)
		}
	})

	t.Run("it yields no hits for an empty response", func(t *testing.T) {
		hits := try.To(records.ParseSearch(map[string]any{})).OrFatal(t)
		if len(hits) != 0 {
			t.Errorf("unexpected hits: %+v", hits)
		}
	})
}
