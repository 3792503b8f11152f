package repository

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
)

// removeAll deletes path recursively, tolerating read-only entries: when a
// plain removal fails, write permission is restored over the whole tree and
// the removal retried once. Missing paths are a no-op.
func removeAll(path string) error {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return nil
	}

	if err := os.RemoveAll(path); err == nil {
		return nil
	}

	filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		mode := fs.FileMode(0600)
		if d.IsDir() {
			mode = 0700
		}
		os.Chmod(p, mode)
		return nil
	})

	return os.RemoveAll(path)
}

// persistJSON writes doc as indented, key-sorted JSON: the on-disk caches
// are meant to be human-diffable.
func persistJSON(path string, doc any) error {
	buf, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, os.FileMode(0644))
}

func loadJSON(path string) (map[string]any, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	doc := map[string]any{}
	if err := json.Unmarshal(buf, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
