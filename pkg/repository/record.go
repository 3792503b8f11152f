// Package repository syncs archival-service records into a local cache:
// download, verify, unpack, and an idempotent synced-state predicate over
// the filesystem.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spectradata/datasets/pkg/api/types/records"
	"github.com/spectradata/datasets/pkg/archive"
	"github.com/spectradata/datasets/pkg/configuration"
	"github.com/spectradata/datasets/pkg/rest"
	"github.com/spectradata/datasets/pkg/transfer"
)

var ErrNoRecordID = errors.New("record document has no id")

// RecordFilename is the persisted copy of the record metadata, written
// after a successful pull.
const RecordFilename = "record.json"

// Record is one dataset release: its remote metadata plus its local
// repository location.
//
// The raw document is kept as fetched so that record.json round-trips; the
// typed view covers the fields the client reads.
type Record struct {
	data   map[string]any
	detail records.Detail
	conf   configuration.Configuration
	opts   *options
}

// New constructs a Record from a raw record document.
func New(doc map[string]any, conf configuration.Configuration, opts ...Option) (*Record, error) {
	detail, err := records.Parse(doc)
	if err != nil {
		return nil, err
	}
	if detail.Id == "" {
		return nil, ErrNoRecordID
	}

	return &Record{
		data:   doc,
		detail: detail,
		conf:   conf,
		opts:   newOptions(opts),
	}, nil
}

// FromID fetches the record document for the given id and constructs a
// Record, creating the repository root directory when absent.
//
// Transfer failures propagate (wrapping rest.ErrMetadataFetch) once the
// attempt budget is exhausted.
func FromID(ctx context.Context, id string, conf configuration.Configuration, opts ...Option) (*Record, error) {
	o := newOptions(opts)

	if err := os.MkdirAll(conf.Repository, os.FileMode(0755)); err != nil {
		return nil, err
	}

	client, err := rest.NewClient(conf.APIRoot, o.transferOptions()...)
	if err != nil {
		return nil, err
	}

	doc, err := client.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	return New(doc, conf, opts...)
}

// ID is the stable remote identifier of the record.
func (r *Record) ID() string {
	return r.detail.Id.String()
}

func (r *Record) Title() string {
	return r.detail.Metadata.Title
}

// Data returns the raw record document as fetched.
func (r *Record) Data() map[string]any {
	return r.data
}

func (r *Record) Configuration() configuration.Configuration {
	return r.conf
}

// Repository is the record's local repository path:
// <repository root>/<record id>. Computed, never stored.
func (r *Record) Repository() string {
	return filepath.Join(r.conf.Repository, r.ID())
}

// Dataset is the unpacked working directory consumed by dataset loaders.
func (r *Record) Dataset() string {
	return filepath.Join(r.Repository(), r.conf.DeflateDirectory)
}

func (r *Record) downloads() string {
	return filepath.Join(r.Repository(), r.conf.DownloadsDirectory)
}

// Synced reports whether the record content is present locally: both the
// downloads and dataset sub-directories exist.
//
// This is a pure filesystem predicate, recomputed on every call, with no
// network access and no side effects. Existence is the whole check; a
// partially-populated dataset directory from an interrupted unpack still
// counts as synced (known weak invariant, kept as designed).
func (r *Record) Synced() bool {
	return isDir(r.downloads()) && isDir(r.Dataset())
}

func isDir(path string) bool {
	stat, err := os.Stat(path)
	return err == nil && stat.IsDir()
}

// downloadTarget is one resolved file to fetch: where from, what to call
// it, and the MD5 digest it must match.
type downloadTarget struct {
	url  string
	name string
	md5  string
}

// Pull downloads the record content into the local repository:
// raw files into downloads/ (checksum-verified), a fresh unpacked working
// copy into dataset/, and the record metadata into record.json.
//
// When a urls-manifest file is present in the record (and WithManifest is
// not disabled), the URLs it lists are the authoritative download set; any
// failure downloading or parsing it degrades, with a logged warning, to
// the record's own file links. That fallback never raises.
//
// Download failures propagate once the attempt budget is exhausted, with
// dataset/ left untouched so Synced() keeps reporting false.
func (r *Record) Pull(ctx context.Context, opts ...Option) error {
	o := r.opts.apply(opts)

	o.logger.Printf("Pulling %q record content...", r.Title())

	if err := os.MkdirAll(r.conf.Repository, os.FileMode(0755)); err != nil {
		return err
	}
	downloads := r.downloads()
	if err := os.MkdirAll(downloads, os.FileMode(0755)); err != nil {
		return err
	}

	targets := r.resolveTargets(ctx, downloads, o)
	sort.Slice(targets, func(i, j int) bool { return targets[i].name < targets[j].name })

	for _, target := range targets {
		err := transfer.Download(
			ctx, target.url, filepath.Join(downloads, target.name),
			append(o.transferOptions(), transfer.WithChecksum(target.md5))...,
		)
		if err != nil {
			return err
		}
	}

	dataset := r.Dataset()
	if err := removeAll(dataset); err != nil {
		return err
	}
	if err := os.CopyFS(dataset, os.DirFS(downloads)); err != nil {
		return err
	}

	entries, err := os.ReadDir(dataset)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !archive.IsArchive(entry.Name()) {
			continue
		}

		src := filepath.Join(dataset, entry.Name())
		o.logger.Printf("Unpacking %q archive...", src)
		if err := archive.Unpack(src, filepath.Join(dataset, archive.ExtractionDir(entry.Name()))); err != nil {
			return err
		}
		if err := os.Remove(src); err != nil {
			return err
		}
	}

	return persistJSON(filepath.Join(r.Repository(), RecordFilename), r.data)
}

// resolveTargets determines the download set: the urls-manifest mapping
// when available and valid, the record's own file links otherwise. The
// degraded path is by contract not an error.
func (r *Record) resolveTargets(ctx context.Context, downloads string, o *options) []downloadTarget {
	if o.manifest {
		if entry := r.manifestEntry(); entry != nil {
			targets, err := r.manifestTargets(ctx, *entry, downloads, o)
			if err == nil {
				return targets
			}
			o.logger.Printf(
				"an error occurred using urls from %q file: %s; switching to record urls...",
				r.conf.URLSManifest, err,
			)
		} else {
			o.logger.Printf(
				"%q file was not found in record data, switching to record urls...",
				r.conf.URLSManifest,
			)
		}
	}

	targets := []downloadTarget{}
	for _, file := range r.detail.Files {
		if file.Key == r.conf.URLSManifest {
			continue
		}
		targets = append(targets, recordTarget(file))
	}
	return targets
}

// recordTarget builds the download target for one record file entry.
// The archival service does not quote file names in links, so spaces are
// escaped here, and content is served under the "/content" suffix.
func recordTarget(file records.File) downloadTarget {
	base := strings.ReplaceAll(file.Links.Self, " ", "%20")
	return downloadTarget{
		url:  base + "/content",
		name: lastSegment(base),
		md5:  file.Digest(),
	}
}

func (r *Record) manifestEntry() *records.File {
	for _, file := range r.detail.Files {
		if file.Key == r.conf.URLSManifest {
			return &file
		}
	}
	return nil
}

// manifestTargets downloads the urls-manifest file (verified by its own
// checksum), parses it, copies it into downloads/ under its configured
// name, and returns the download set it defines.
//
// A well-formed manifest whose urls mapping is empty is rejected here, so
// the caller degrades to the record's own links instead of pulling
// nothing and marking the record synced.
func (r *Record) manifestTargets(ctx context.Context, entry records.File, downloads string, o *options) ([]downloadTarget, error) {
	tmp, err := os.CreateTemp("", "urls-manifest-")
	if err != nil {
		return nil, err
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	target := recordTarget(entry)
	err = transfer.Download(
		ctx, target.url, tmp.Name(),
		append(o.transferOptions(), transfer.WithChecksum(target.md5))...,
	)
	if err != nil {
		return nil, err
	}

	buf, err := os.ReadFile(tmp.Name())
	if err != nil {
		return nil, err
	}

	manifest := records.Manifest{}
	if err := json.Unmarshal(buf, &manifest); err != nil {
		return nil, err
	}
	if len(manifest.URLS) == 0 {
		return nil, fmt.Errorf("manifest %q lists no urls", r.conf.URLSManifest)
	}

	if err := os.WriteFile(filepath.Join(downloads, r.conf.URLSManifest), buf, os.FileMode(0644)); err != nil {
		return nil, err
	}

	targets := []downloadTarget{}
	for u, checksum := range manifest.URLS {
		targets = append(targets, downloadTarget{
			url:  u,
			name: lastSegment(u),
			md5:  records.Digest(checksum),
		})
	}
	return targets, nil
}

func lastSegment(u string) string {
	seg := u
	if i := strings.LastIndex(u, "/"); 0 <= i {
		seg = u[i+1:]
	}
	if unescaped, err := url.PathUnescape(seg); err == nil {
		return unescaped
	}
	return seg
}

// Remove deletes the record's local repository, tolerating read-only
// files. A no-op when nothing is present; Synced() reports false after.
func (r *Record) Remove() error {
	return removeAll(r.Repository())
}
