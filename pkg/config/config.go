// Package config loads the user preference file.
//
// Values are layered in order: built-in defaults, the TOML preference file,
// then DISTBUILDER_* environment variables (DISTBUILDER_CMAKE_GENERATOR sets
// cmake.generator). A minimal preference file looks like:
//
//	[directory]
//	build = "build"
//	install = "$HOME/opt/distbuilder"
//	sources = ["recipes"]
//
//	[cmake]
//	generator = "Ninja"
//
// Relative directories are resolved against the directory holding the
// preference file.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/matzehuels/distbuilder/pkg/blob"
	"github.com/matzehuels/distbuilder/pkg/errors"
	"github.com/matzehuels/distbuilder/pkg/process"
)

const (
	AppName   = "distbuilder"
	FileName  = "preference.toml"
	EnvPrefix = "DISTBUILDER_"
)

// Config is the decoded preference file.
type Config struct {
	Directory Directory `koanf:"directory"`
	CMake     CMake     `koanf:"cmake"`
	Download  Download  `koanf:"download"`
	Process   Process   `koanf:"process"`

	// Path is the preference file that was loaded, empty when none was.
	Path string `koanf:"-"`
}

type Directory struct {
	Build   string   `koanf:"build"`
	Install string   `koanf:"install"`
	Blobs   string   `koanf:"blobs"`
	Sources []string `koanf:"sources"`
}

type CMake struct {
	Path      string `koanf:"path"`
	Generator string `koanf:"generator"`
	Arch      string `koanf:"arch"`
}

type Download struct {
	Algorithm string        `koanf:"algorithm"`
	Attempts  int           `koanf:"attempts"`
	Timeout   time.Duration `koanf:"timeout"`
}

type Process struct {
	Encoding string `koanf:"encoding"`
}

// DefaultPath is the preference file used when none is given.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, FileName)
}

// Defaults returns the built-in values as a flat koanf map.
func Defaults() map[string]any {
	return map[string]any{
		"directory.build":    filepath.Join(xdg.CacheHome, AppName, "build"),
		"directory.install":  filepath.Join(xdg.DataHome, AppName, "install"),
		"directory.blobs":    filepath.Join(xdg.CacheHome, AppName, "blobs"),
		"directory.sources":  []string{},
		"cmake.path":         "cmake",
		"cmake.generator":    "",
		"cmake.arch":         "",
		"download.algorithm": string(blob.SHA256),
		"download.attempts":  1,
		"download.timeout":   "10m",
		"process.encoding":   process.DefaultEncoding,
	}
}

// Load reads the preference file at path. An empty path means
// [DefaultPath], which may be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "load defaults")
	}

	loaded := ""
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "load %s", path)
		}
		loaded = path
	} else if explicit {
		return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "preference file %s", path)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "load environment")
	}

	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "decode preferences")
	}
	cfg.Path = loaded

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps DISTBUILDER_CMAKE_PATH to cmake.path.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
}

func (c *Config) resolve() error {
	base := ""
	if c.Path != "" {
		base = filepath.Dir(c.Path)
	}
	var err error
	for _, p := range []*string{&c.Directory.Build, &c.Directory.Install, &c.Directory.Blobs} {
		if *p, err = absDir(base, *p); err != nil {
			return err
		}
	}
	for i, s := range c.Directory.Sources {
		if c.Directory.Sources[i], err = absDir(base, s); err != nil {
			return err
		}
	}
	c.CMake.Path = os.ExpandEnv(c.CMake.Path)
	return nil
}

func absDir(base, p string) (string, error) {
	p = os.ExpandEnv(strings.TrimSpace(p))
	if p == "" {
		return "", errors.New(errors.ErrCodeConfiguration, "empty directory in preferences")
	}
	if !filepath.IsAbs(p) && base != "" {
		p = filepath.Join(base, p)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeIO, err, "resolve %s", p)
	}
	return abs, nil
}

// Validate checks values that cannot be checked by decoding alone.
func (c *Config) Validate() error {
	if _, err := blob.ParseAlgorithm(c.Download.Algorithm); err != nil {
		return err
	}
	if c.Download.Attempts < 1 {
		return errors.New(errors.ErrCodeConfiguration, "download.attempts must be at least 1, got %d", c.Download.Attempts)
	}
	if c.Download.Timeout < 0 {
		return errors.New(errors.ErrCodeConfiguration, "download.timeout must not be negative")
	}
	if _, err := process.Encoding(c.Process.Encoding); err != nil {
		return err
	}
	return nil
}

// EnsureDirs creates the build, install and blob roots.
func (c *Config) EnsureDirs() error {
	for _, d := range []string{c.Directory.Build, c.Directory.Install, c.Directory.Blobs} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return errors.Wrap(errors.ErrCodeIO, err, "create %s", d)
		}
	}
	return nil
}
