package loaders_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spectradata/datasets/pkg/configuration"
	"github.com/spectradata/datasets/pkg/loaders"
	"github.com/spectradata/datasets/pkg/repository"
	"github.com/spectradata/datasets/pkg/utils/try"
)

// catalog builds an offline community of two records over root, the first
// one pre-synced with a single dataset file.
func catalog(t *testing.T, root string) *repository.Community {
	conf := configuration.Configuration{
		Repository: root,
		APIRoot:    "http://localhost/api",
		Community:  "spectra-datasets",
	}.WithDefaults()

	recordsDoc := map[string]any{
		"hits": map[string]any{
			"hits": []any{
				map[string]any{
					"id":       "3245883",
					"metadata": map[string]any{"title": "Camera Spectral Sensitivity Database"},
				},
				map[string]any{
					"id":       "4050598",
					"metadata": map[string]any{"title": "Spectral Upsampling Coefficients"},
				},
			},
		},
	}

	dataset := filepath.Join(root, "3245883", conf.DeflateDirectory)
	try.To(0, os.MkdirAll(filepath.Join(root, "3245883", conf.DownloadsDirectory), 0755)).OrFatal(t)
	try.To(0, os.MkdirAll(dataset, 0755)).OrFatal(t)
	try.To(0, os.WriteFile(
		filepath.Join(dataset, "camspec_database.txt"), []byte("camera data\n"), 0644,
	)).OrFatal(t)

	return try.To(repository.NewCommunity(
		map[string]any{"id": "spectra-datasets"}, recordsDoc, conf,
	)).OrFatal(t)
}

// textLoader reads one named file from the dataset working directory.
type textLoader struct {
	record   *repository.Record
	filename string
	loads    *int
}

func (l *textLoader) ID() string {
	return l.record.ID()
}

func (l *textLoader) Load(ctx context.Context) (any, error) {
	if err := loaders.RequireSynced(l.record); err != nil {
		return nil, err
	}
	if l.loads != nil {
		*l.loads += 1
	}
	buf, err := os.ReadFile(filepath.Join(l.record.Dataset(), l.filename))
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("it loads a registered dataset by id", func(t *testing.T) {
		community := catalog(t, t.TempDir())
		registry := loaders.NewRegistry(community)
		registry.Register("3245883", func(r *repository.Record) loaders.Loader {
			return &textLoader{record: r, filename: "camspec_database.txt"}
		})

		got := try.To(registry.Load(ctx, "3245883")).OrFatal(t)
		if got != "camera data\n" {
			t.Errorf("unexpected content: %q", got)
		}
	})

	t.Run("it resolves titles case-insensitively", func(t *testing.T) {
		community := catalog(t, t.TempDir())
		registry := loaders.NewRegistry(community)
		registry.Register("3245883", func(r *repository.Record) loaders.Loader {
			return &textLoader{record: r, filename: "camspec_database.txt"}
		})

		got := try.To(registry.Load(ctx, "camera spectral sensitivity database")).OrFatal(t)
		if got != "camera data\n" {
			t.Errorf("unexpected content: %q", got)
		}
	})

	t.Run("it memoises built loaders per id", func(t *testing.T) {
		community := catalog(t, t.TempDir())
		registry := loaders.NewRegistry(community)

		builds := 0
		registry.Register("3245883", func(r *repository.Record) loaders.Loader {
			builds += 1
			return &textLoader{record: r, filename: "camspec_database.txt"}
		})

		try.To(registry.Load(ctx, "3245883")).OrFatal(t)
		try.To(registry.Load(ctx, "Camera Spectral Sensitivity Database")).OrFatal(t)
		if builds != 1 {
			t.Errorf("factory should run once, ran %d times", builds)
		}
	})

	t.Run("it rejects unknown names", func(t *testing.T) {
		community := catalog(t, t.TempDir())
		registry := loaders.NewRegistry(community)

		_, err := registry.Load(ctx, "no-such-dataset")
		if !errors.Is(err, loaders.ErrUnknownDataset) {
			t.Errorf("expected an unknown dataset error, got: %s", err)
		}
	})

	t.Run("it rejects ids registered but absent from the community", func(t *testing.T) {
		community := catalog(t, t.TempDir())
		registry := loaders.NewRegistry(community)
		registry.Register("0000000", func(r *repository.Record) loaders.Loader {
			return &textLoader{record: r}
		})

		_, err := registry.Load(ctx, "0000000")
		if !errors.Is(err, loaders.ErrUnknownDataset) {
			t.Errorf("expected an unknown dataset error, got: %s", err)
		}
	})
}

func TestRegisterTable(t *testing.T) {
	ctx := context.Background()

	t.Run("it registers each row with its own parameters", func(t *testing.T) {
		community := catalog(t, t.TempDir())
		registry := loaders.NewRegistry(community)

		loaders.RegisterTable(registry, []loaders.TableRow[string]{
			{ID: "3245883", Title: "Camera Spectral Sensitivity Database", Parameters: "camspec_database.txt"},
			{ID: "4050598", Title: "Spectral Upsampling Coefficients", Parameters: "coefficients.csv"},
		}, func(r *repository.Record, filename string) loaders.Loader {
			return &textLoader{record: r, filename: filename}
		})

		if !registry.Known("3245883") || !registry.Known("4050598") {
			t.Error("both rows should be registered")
		}

		got := try.To(registry.Load(ctx, "3245883")).OrFatal(t)
		if !strings.Contains(got.(string), "camera data") {
			t.Errorf("unexpected content: %q", got)
		}
	})
}

func TestRequireSynced(t *testing.T) {
	t.Run("it fails for an unsynced record", func(t *testing.T) {
		community := catalog(t, t.TempDir())
		record, _ := community.Get("4050598")

		err := loaders.RequireSynced(record)
		if !errors.Is(err, loaders.ErrNotSynced) {
			t.Errorf("expected a not-synced error, got: %s", err)
		}
	})

	t.Run("it passes for a synced record", func(t *testing.T) {
		community := catalog(t, t.TempDir())
		record, _ := community.Get("3245883")

		if err := loaders.RequireSynced(record); err != nil {
			t.Error(err)
		}
	})
}

func TestEnsureSynced(t *testing.T) {
	t.Run("it is a no-op for a synced record", func(t *testing.T) {
		community := catalog(t, t.TempDir())
		record, _ := community.Get("3245883")

		if err := loaders.EnsureSynced(context.Background(), record); err != nil {
			t.Error(err)
		}
	})
}
