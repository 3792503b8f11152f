// Package configuration holds the process-wide settings of the dataset
// client: where the local repository lives, which archival service API to
// talk to, and which community is the default catalog.
package configuration

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	yaml "gopkg.in/yaml.v3"
)

const (
	// EnvRepository overrides the local repository root. Read once, when
	// a default Configuration is constructed.
	EnvRepository = "DATASETS_REPOSITORY"

	ProductionAPIRoot = "https://zenodo.org/api"
	SandboxAPIRoot    = "https://sandbox.zenodo.org/api"

	DefaultCommunity = "spectra-datasets"
)

var (
	ErrConfigurationNotFound = errors.New("configuration file is not found")
	ErrConfigurationInvalid  = errors.New("configuration is invalid")
)

// Configuration is immutable by convention: share it by value and it stays
// what it was when constructed, whatever happens to the process defaults.
type Configuration struct {
	// Repository is the absolute local cache root.
	Repository string `yaml:"repository"`

	// DownloadsDirectory names the raw-downloads sub-directory of a
	// record's repository.
	DownloadsDirectory string `yaml:"downloadsDirectory"`

	// DeflateDirectory names the unpacked working-copy sub-directory.
	DeflateDirectory string `yaml:"deflateDirectory"`

	// APIRoot is the archival service API base URL.
	APIRoot string `yaml:"apiRoot"`

	// Community is the default catalog id.
	Community string `yaml:"community"`

	// URLSManifest names the optional urls-manifest file of a record.
	URLSManifest string `yaml:"urlsManifest"`
}

var (
	mu       sync.Mutex
	defaults = Configuration{
		DownloadsDirectory: "downloads",
		DeflateDirectory:   "dataset",
		APIRoot:            ProductionAPIRoot,
		Community:          DefaultCommunity,
		URLSManifest:       "urls.txt",
	}
)

// Default returns a copy of the current process-wide default settings.
//
// UseSandbox mutates the defaults this copies from; Configurations
// constructed before such a toggle are unaffected.
func Default() Configuration {
	mu.Lock()
	defer mu.Unlock()

	c := defaults
	if c.Repository == "" {
		c.Repository = getEnvOr(
			EnvRepository,
			filepath.Join(homeDir(), ".spectradata", "datasets"),
		)
	}
	return c
}

// WithDefaults fills every zero field of c from Default().
func (c Configuration) WithDefaults() Configuration {
	d := Default()
	if c.Repository == "" {
		c.Repository = d.Repository
	}
	if c.DownloadsDirectory == "" {
		c.DownloadsDirectory = d.DownloadsDirectory
	}
	if c.DeflateDirectory == "" {
		c.DeflateDirectory = d.DeflateDirectory
	}
	if c.APIRoot == "" {
		c.APIRoot = d.APIRoot
	}
	if c.Community == "" {
		c.Community = d.Community
	}
	if c.URLSManifest == "" {
		c.URLSManifest = d.URLSManifest
	}
	return c
}

// Verify checks c is usable: APIRoot must be an absolute URL and
// Repository must be set.
func (c Configuration) Verify() error {
	if u, err := url.Parse(c.APIRoot); err != nil || !u.IsAbs() {
		return fmt.Errorf("%w: apiRoot is not URL: %s", ErrConfigurationInvalid, c.APIRoot)
	}
	if c.Repository == "" {
		return fmt.Errorf("%w: repository is not set", ErrConfigurationInvalid)
	}
	return nil
}

// Load reads a YAML settings file. Zero fields are filled from Default(),
// and a leading "~/" in repository is expanded to the user's home.
func Load(path string) (Configuration, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Configuration{}, fmt.Errorf("%w at %s", ErrConfigurationNotFound, path)
		}
		return Configuration{}, err
	}

	c := Configuration{}
	if err := yaml.Unmarshal(buf, &c); err != nil {
		return Configuration{}, err
	}

	c = c.WithDefaults()
	repo, err := resolve(c.Repository)
	if err != nil {
		return Configuration{}, err
	}
	c.Repository = repo

	if err := c.Verify(); err != nil {
		return Configuration{}, err
	}
	return c, nil
}

type sandboxOptions struct {
	apiRoot   string
	community string
}

type SandboxOption func(*sandboxOptions) *sandboxOptions

func WithAPIRoot(apiRoot string) SandboxOption {
	return func(o *sandboxOptions) *sandboxOptions {
		o.apiRoot = apiRoot
		return o
	}
}

func WithCommunity(community string) SandboxOption {
	return func(o *sandboxOptions) *sandboxOptions {
		o.community = community
		return o
	}
}

// UseSandbox switches the process-wide default settings to the sandbox
// archival service (or, with state false, back to production).
//
// The effect is global but reaches only Configurations constructed
// afterwards; existing instances keep their values.
func UseSandbox(state bool, options ...SandboxOption) {
	o := &sandboxOptions{
		apiRoot:   SandboxAPIRoot,
		community: DefaultCommunity,
	}
	for _, opt := range options {
		o = opt(o)
	}

	mu.Lock()
	defer mu.Unlock()
	if state {
		defaults.APIRoot = o.apiRoot
		defaults.Community = o.community
	} else {
		defaults.APIRoot = ProductionAPIRoot
		defaults.Community = DefaultCommunity
	}
}

// Sandbox runs fn with the sandbox defaults enabled, restoring the prior
// defaults on exit, including when fn panics.
func Sandbox(fn func() error, options ...SandboxOption) error {
	mu.Lock()
	snapshot := defaults
	mu.Unlock()

	defer func() {
		mu.Lock()
		defaults = snapshot
		mu.Unlock()
	}()

	UseSandbox(true, options...)
	return fn()
}

// Get environment variable. If missing/empty, return fallback value.
func getEnvOr(name, fallback string) string {
	val := os.Getenv(name)
	if val == "" {
		return fallback
	}
	return val
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

const tilde = "~" + string(filepath.Separator)

// resolve returns the absolute representation of pathstring, expanding a
// leading "~" to the user's home directory.
func resolve(pathstring string) (string, error) {
	if strings.HasPrefix(pathstring, tilde) {
		homedir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		pathstring = filepath.Join(homedir, pathstring[2:])
	}
	return filepath.Abs(pathstring)
}
