// Package config loads run configuration and names the paths of the output layout.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/matsen/revharvest/internal/fetch"
	"github.com/matsen/revharvest/internal/review"
)

// EnvPrefix prefixes environment overrides: REVHARVEST_DUMP_DIR, REVHARVEST_FETCH_DELAY.
const EnvPrefix = "REVHARVEST"

// Configuration keys.
const (
	KeyDumpDir                   = "dump_dir"
	KeyUpdate                    = "update"
	KeyWorkers                   = "workers"
	KeyLogLevel                  = "log_level"
	KeyLogFormat                 = "log_format"
	KeyLogFile                   = "log_file"
	KeyBoilerplatePolicy         = "boilerplate_policy"
	KeyIncludeUnregistered       = "include_unregistered"
	KeySkipSupplementaryDownload = "skip_supplementary_download"
	KeyExtractPDFText            = "extract_pdf_text"
	KeyPDFMaxPages               = "pdf_max_pages"
	KeySaveHTML                  = "save_html"
	KeyMaxArticles               = "max_articles"
	KeyTables                    = "tables"

	KeyFetchUserAgent    = "fetch.user_agent"
	KeyFetchTimeout      = "fetch.timeout"
	KeyFetchDelay        = "fetch.delay"
	KeyFetchRandomDelay  = "fetch.random_delay"
	KeyFetchParallelism  = "fetch.parallelism"
	KeyFetchDownloadRate = "fetch.download_rate"
)

// Config is the configuration of one run.
type Config struct {
	DumpDir string `json:"dump_dir" yaml:"dump_dir"`
	Update  bool   `json:"update" yaml:"update"`
	Workers int    `json:"workers" yaml:"workers"`

	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format"` // json or console
	LogFile   string `json:"log_file,omitempty" yaml:"log_file,omitempty"`

	BoilerplatePolicy         string `json:"boilerplate_policy" yaml:"boilerplate_policy"`
	IncludeUnregistered       bool   `json:"include_unregistered" yaml:"include_unregistered"`
	SkipSupplementaryDownload bool   `json:"skip_supplementary_download" yaml:"skip_supplementary_download"`
	ExtractPDFText            bool   `json:"extract_pdf_text" yaml:"extract_pdf_text"`
	PDFMaxPages               int    `json:"pdf_max_pages" yaml:"pdf_max_pages"` // 0: every page
	SaveHTML                  bool   `json:"save_html" yaml:"save_html"`
	MaxArticles               int    `json:"max_articles" yaml:"max_articles"`
	Tables                    string `json:"tables,omitempty" yaml:"tables,omitempty"` // publisher table overrides

	Fetch FetchConfig `json:"fetch" yaml:"fetch"`
}

// FetchConfig holds the politeness settings for page and attachment requests.
type FetchConfig struct {
	UserAgent    string        `json:"user_agent" yaml:"user_agent"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`
	Delay        time.Duration `json:"delay" yaml:"delay"`
	RandomDelay  time.Duration `json:"random_delay" yaml:"random_delay"`
	Parallelism  int           `json:"parallelism" yaml:"parallelism"`
	DownloadRate float64       `json:"download_rate" yaml:"download_rate"`
}

// Defaults returns the settings used for keys nobody sets.
func Defaults() map[string]any {
	fo := fetch.DefaultOptions()
	return map[string]any{
		KeyDumpDir:                   "./data",
		KeyUpdate:                    false,
		KeyWorkers:                   runtime.NumCPU(),
		KeyLogLevel:                  "info",
		KeyLogFormat:                 "console",
		KeyLogFile:                   "",
		KeyBoilerplatePolicy:         string(review.PolicyStop),
		KeyIncludeUnregistered:       true,
		KeySkipSupplementaryDownload: false,
		KeyExtractPDFText:            true,
		KeyPDFMaxPages:               0,
		KeySaveHTML:                  false,
		KeyMaxArticles:               0,
		KeyTables:                    "",
		KeyFetchUserAgent:            fo.UserAgent,
		KeyFetchTimeout:              fo.Timeout,
		KeyFetchDelay:                fo.Delay,
		KeyFetchRandomDelay:          fo.RandomDelay,
		KeyFetchParallelism:          fo.Parallelism,
		KeyFetchDownloadRate:         fo.DownloadRate,
	}
}

// FlagName is the command-line flag bound to key: dump_dir becomes --dump-dir.
func FlagName(key string) string {
	return strings.NewReplacer(".", "-", "_", "-").Replace(key)
}

// Load reads configuration from, in increasing precedence: defaults, the YAML file
// at path (the global config file when path is empty and it exists), REVHARVEST_*
// environment variables, and the flags in flags that were set explicitly.
// flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		if global := GlobalConfigPath(); global != "" && fileExists(global) {
			path = global
		}
	}
	if path != "" {
		v.SetConfigFile(ExpandPath(path))
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if flags != nil {
		for key := range Defaults() {
			if f := flags.Lookup(FlagName(key)); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag --%s: %w", f.Name, err)
				}
			}
		}
	}

	return decode(v)
}

// decode converts loosely typed values ("yes", "1", "30s") with cast so that every
// malformed key is reported, not just the first.
func decode(v *viper.Viper) (*Config, error) {
	var errs []error
	str := func(key string) string {
		s, err := cast.ToStringE(v.Get(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return strings.TrimSpace(s)
	}
	boolean := func(key string) bool {
		b, err := looseBool(v.Get(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return b
	}
	integer := func(key string) int {
		n, err := cast.ToIntE(v.Get(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return n
	}
	duration := func(key string) time.Duration {
		d, err := cast.ToDurationE(v.Get(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}
	float := func(key string) float64 {
		f, err := cast.ToFloat64E(v.Get(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return f
	}

	cfg := &Config{
		DumpDir:                   ExpandPath(str(KeyDumpDir)),
		Update:                    boolean(KeyUpdate),
		Workers:                   integer(KeyWorkers),
		LogLevel:                  str(KeyLogLevel),
		LogFormat:                 str(KeyLogFormat),
		LogFile:                   ExpandPath(str(KeyLogFile)),
		BoilerplatePolicy:         str(KeyBoilerplatePolicy),
		IncludeUnregistered:       boolean(KeyIncludeUnregistered),
		SkipSupplementaryDownload: boolean(KeySkipSupplementaryDownload),
		ExtractPDFText:            boolean(KeyExtractPDFText),
		PDFMaxPages:               integer(KeyPDFMaxPages),
		SaveHTML:                  boolean(KeySaveHTML),
		MaxArticles:               integer(KeyMaxArticles),
		Tables:                    ExpandPath(str(KeyTables)),
		Fetch: FetchConfig{
			UserAgent:    str(KeyFetchUserAgent),
			Timeout:      duration(KeyFetchTimeout),
			Delay:        duration(KeyFetchDelay),
			RandomDelay:  duration(KeyFetchRandomDelay),
			Parallelism:  integer(KeyFetchParallelism),
			DownloadRate: float(KeyFetchDownloadRate),
		},
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// looseBool accepts yes/no and on/off besides what strconv.ParseBool understands.
func looseBool(value any) (bool, error) {
	if s, ok := value.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "yes", "y", "on":
			return true, nil
		case "no", "n", "off", "":
			return false, nil
		}
	}
	return cast.ToBoolE(value)
}

// Validate reports every invalid setting.
func (c *Config) Validate() []error {
	var errs []error
	if c.DumpDir == "" {
		errs = append(errs, fmt.Errorf("%s must not be empty", KeyDumpDir))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", KeyWorkers, c.Workers))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyLogLevel, err))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("%s must be json or console, got %q", KeyLogFormat, c.LogFormat))
	}
	if _, err := review.ParsePolicy(c.BoilerplatePolicy); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyBoilerplatePolicy, err))
	}
	if c.MaxArticles < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeyMaxArticles))
	}
	if c.PDFMaxPages < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeyPDFMaxPages))
	}
	if c.Tables != "" && !fileExists(c.Tables) {
		errs = append(errs, fmt.Errorf("%s: file does not exist: %s", KeyTables, c.Tables))
	}
	errs = append(errs, c.Fetch.Validate()...)
	return errs
}

// Validate reports every invalid fetch setting.
func (f FetchConfig) Validate() []error {
	var errs []error
	if f.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyFetchTimeout))
	}
	if f.Delay < 0 || f.RandomDelay < 0 {
		errs = append(errs, fmt.Errorf("%s and %s must not be negative", KeyFetchDelay, KeyFetchRandomDelay))
	}
	if f.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1", KeyFetchParallelism))
	}
	if f.DownloadRate <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyFetchDownloadRate))
	}
	return errs
}

// Options converts the settings to fetcher options.
func (f FetchConfig) Options() fetch.Options {
	return fetch.Options{
		UserAgent:    f.UserAgent,
		Timeout:      f.Timeout,
		Delay:        f.Delay,
		RandomDelay:  f.RandomDelay,
		Parallelism:  f.Parallelism,
		DownloadRate: f.DownloadRate,
	}
}

// Policy returns the parsed boilerplate policy. Call after Validate.
func (c *Config) Policy() review.BoilerplatePolicy {
	p, _ := review.ParsePolicy(c.BoilerplatePolicy)
	return p
}
