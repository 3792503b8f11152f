// Package transfer streams remote resources to local files with MD5
// verification, bounded retry and byte-progress reporting.
package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"

	kio "github.com/spectradata/datasets/pkg/utils/io"
	"github.com/spectradata/datasets/pkg/utils/retry"
)

var (
	// ErrTransfer wraps the last underlying cause once the attempt budget
	// of a download or fetch is exhausted.
	ErrTransfer = errors.New("transfer failed")

	// ErrChecksumUnmatch marks a downloaded file whose MD5 digest does not
	// match the expected one. Retried like a network failure.
	ErrChecksumUnmatch = errors.New("checksum unmatch")
)

// DefaultAttempts is the total attempt budget of Download and FetchJSON.
const DefaultAttempts = 3

type options struct {
	checksum string
	attempts int
	interval time.Duration
	progress io.Writer
	logger   *log.Logger
	client   *http.Client
}

type Option func(*options) *options

// WithChecksum makes Download verify the fully-written file against the
// given hex MD5 digest (case-insensitive).
func WithChecksum(md5hex string) Option {
	return func(o *options) *options {
		o.checksum = md5hex
		return o
	}
}

// WithAttempts sets the total attempt budget (not the retry count).
func WithAttempts(n int) Option {
	return func(o *options) *options {
		if 0 < n {
			o.attempts = n
		}
		return o
	}
}

// WithBackoffInterval sets the wait between attempts.
func WithBackoffInterval(d time.Duration) Option {
	return func(o *options) *options {
		o.interval = d
		return o
	}
}

// WithProgressOutput sets where byte progress is rendered. Default: stderr.
func WithProgressOutput(w io.Writer) Option {
	return func(o *options) *options {
		o.progress = w
		return o
	}
}

func WithLogger(l *log.Logger) Option {
	return func(o *options) *options {
		o.logger = l
		return o
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) *options {
		o.client = c
		return o
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		attempts: DefaultAttempts,
		interval: 1 * time.Second,
		progress: os.Stderr,
		logger:   log.Default(),
		client:   http.DefaultClient,
	}
	for _, opt := range opts {
		o = opt(o)
	}
	return o
}

const noBar pb.ProgressBarTemplate = `{{with string . "prefix"}}{{.}} {{end}}{{counters . }} {{with string . "suffix"}} {{.}}{{end}}`

// Download streams the resource at url into destination, overwriting any
// existing file.
//
// When WithChecksum is given, the MD5 digest of the fully-written file is
// compared case-insensitively against it; a mismatch counts as a failed
// attempt and is never reported as success. Each attempt restarts the
// download from scratch. Once the attempt budget is exhausted, the returned
// error wraps ErrTransfer and the last cause.
func Download(ctx context.Context, url string, destination string, opts ...Option) error {
	o := newOptions(opts)

	attempt := 0
	_, err := retry.Blocking(ctx, retry.StaticBackoff(o.interval), func() (struct{}, error) {
		attempt += 1
		err := download(ctx, url, destination, o)
		if err == nil {
			return struct{}{}, nil
		}

		o.logger.Printf(
			"an error occurred while downloading %q during attempt %d: %s",
			destination, attempt, err,
		)
		if attempt < o.attempts {
			return struct{}{}, fmt.Errorf("%w: %w", retry.ErrRetry, err)
		}
		return struct{}{}, fmt.Errorf("%w: downloading %s: %w", ErrTransfer, url, err)
	})
	return err
}

func download(ctx context.Context, url string, destination string, o *options) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	err = func() error {
		fp, err := os.OpenFile(destination, os.O_CREATE|os.O_RDWR|os.O_TRUNC, os.FileMode(0644))
		if err != nil {
			return err
		}
		defer fp.Close()

		bar := noBar.New(-1)
		bar.SetWriter(o.progress)
		bar.Set("prefix", fmt.Sprintf("Downloading %q:", path.Base(req.URL.Path)))
		bar.Start()
		defer bar.Finish()

		_, err = io.Copy(fp, bar.NewProxyReader(resp.Body))
		return err
	}()
	if err != nil {
		return err
	}

	if o.checksum == "" {
		return nil
	}

	sum, err := kio.FileChecksum(destination, kio.DefaultChunkSize)
	if err != nil {
		return err
	}
	if !strings.EqualFold(sum, o.checksum) {
		return fmt.Errorf("%w: %s: got %s, want %s", ErrChecksumUnmatch, destination, sum, o.checksum)
	}
	return nil
}

// FetchJSON GETs url and decodes the response into `into`, with the same
// retry policy as Download (and no checksum).
func FetchJSON(ctx context.Context, url string, into any, opts ...Option) error {
	o := newOptions(opts)

	attempt := 0
	_, err := retry.Blocking(ctx, retry.StaticBackoff(o.interval), func() (struct{}, error) {
		attempt += 1
		err := fetchJSON(ctx, url, into, o)
		if err == nil {
			return struct{}{}, nil
		}

		o.logger.Printf(
			"an error occurred while opening %q during attempt %d: %s",
			url, attempt, err,
		)
		if attempt < o.attempts {
			return struct{}{}, fmt.Errorf("%w: %w", retry.ErrRetry, err)
		}
		return struct{}{}, fmt.Errorf("%w: fetching %s: %w", ErrTransfer, url, err)
	})
	return err
}

func fetchJSON(ctx context.Context, url string, into any, o *options) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, into)
}
