package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/railgtfs/railgtfs"
	"github.com/railgtfs/railgtfs/downloader"
	"github.com/railgtfs/railgtfs/feed"
	"github.com/railgtfs/railgtfs/model"
	"github.com/railgtfs/railgtfs/parse"
)

const (
	GeographyCSV      = "csv"
	GeographySQLite   = "sqlite"
	GeographyPostgres = "postgres"

	OutputZip      = "zip"
	OutputSQLite   = "sqlite"
	OutputPostgres = "postgres"

	DefaultOutputPath = "gtfs.zip"
)

// Where timetable files come from. Exactly one of URL and Directory
// is set.
type Input struct {
	URL       string `yaml:"url" validate:"omitempty,url"`
	Directory string `yaml:"directory" validate:"required_without=URL"`

	// Files to fetch. All files in Directory if empty.
	Files   []string          `yaml:"files"`
	Headers map[string]string `yaml:"headers"`

	Timeout       time.Duration `yaml:"timeout" validate:"gte=0"`
	Retries       *uint64       `yaml:"retries"`
	RetryInterval time.Duration `yaml:"retry_interval" validate:"gte=0"`
	MaxSize       int           `yaml:"max_size" validate:"gte=0"`
}

type Geography struct {
	Kind string `yaml:"kind" validate:"omitempty,oneof=csv sqlite postgres"`

	// CSV file or SQLite database.
	Path string `yaml:"path" validate:"required_unless=Kind postgres"`

	// Postgres connection string.
	DSN string `yaml:"dsn" validate:"required_if=Kind postgres"`
}

type Output struct {
	Kind string `yaml:"kind" validate:"omitempty,oneof=zip sqlite postgres"`
	Path string `yaml:"path"`
	DSN  string `yaml:"dsn" validate:"required_if=Kind postgres"`

	// Diagnostics are written here as CSV, if set.
	Diagnostics string `yaml:"diagnostics"`
}

type Agency struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name" validate:"required"`
	URL      string `yaml:"url" validate:"required,url"`
	Timezone string `yaml:"timezone" validate:"required"`
	Lang     string `yaml:"lang" validate:"omitempty,len=2"`
	Phone    string `yaml:"phone"`
}

type Publisher struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url" validate:"omitempty,url"`
	Lang string `yaml:"lang" validate:"omitempty,len=2"`
}

type Routes struct {
	Rule         string `yaml:"rule" validate:"omitempty,oneof=category prefix"`
	PrefixLength int    `yaml:"prefix_length" validate:"gte=0"`
}

type Config struct {
	Input     Input     `yaml:"input"`
	Geography Geography `yaml:"geography"`
	Output    Output    `yaml:"output"`

	Workers   int           `yaml:"workers" validate:"gte=0"`
	Encoding  string        `yaml:"encoding" validate:"omitempty,oneof=utf-8 windows-1250"`
	Tolerance time.Duration `yaml:"tolerance" validate:"gte=0"`

	DomesticCountries []string `yaml:"domestic_countries" validate:"dive,len=2,uppercase"`

	Routes    Routes     `yaml:"routes"`
	Agency    *Agency    `yaml:"agency"`
	Publisher *Publisher `yaml:"publisher"`
}

// Configuration used when no file is given. Input still has to be
// provided.
func Default() *Config {
	c := &Config{}
	c.fillDefaults()
	return c
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Parse(data []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	c.fillDefaults()
	return c, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Input.URL != "" && c.Input.Directory != "" {
		return fmt.Errorf("invalid config: input has both url and directory")
	}
	if c.Routes.Rule == string(feed.RouteByPrefix) && c.Routes.PrefixLength == 0 {
		return fmt.Errorf("invalid config: prefix route rule requires prefix_length")
	}
	return nil
}

func (c *Config) fillDefaults() {
	if c.Geography.Kind == "" {
		c.Geography.Kind = GeographyCSV
	}
	if c.Output.Kind == "" {
		c.Output.Kind = OutputZip
	}
	if c.Output.Path == "" && c.Output.Kind == OutputZip {
		c.Output.Path = DefaultOutputPath
	}

	defaults := railgtfs.DefaultOptions()
	if c.Workers == 0 {
		c.Workers = defaults.Workers
	}
	if c.Encoding == "" {
		c.Encoding = string(defaults.Encoding)
	}
	if len(c.DomesticCountries) == 0 {
		c.DomesticCountries = defaults.DomesticCountries
	}
	if c.Routes.Rule == "" {
		c.Routes.Rule = string(defaults.RouteRule.Kind)
	}

	get := downloader.DefaultGetOptions()
	if c.Input.Timeout == 0 {
		c.Input.Timeout = get.Timeout
	}
	if c.Input.Retries == nil {
		retries := get.Retries
		c.Input.Retries = &retries
	}
	if c.Input.RetryInterval == 0 {
		c.Input.RetryInterval = get.RetryInterval
	}
	if c.Input.MaxSize == 0 {
		c.Input.MaxSize = get.MaxSize
	}
}

// Pipeline options. Publisher falls back to the agency.
func (c *Config) Options() railgtfs.Options {
	opts := railgtfs.Options{
		Workers:           c.Workers,
		Encoding:          parse.Encoding(c.Encoding),
		Tolerance:         c.Tolerance,
		DomesticCountries: c.DomesticCountries,
		RouteRule: feed.RouteRule{
			Kind:         feed.RouteRuleKind(c.Routes.Rule),
			PrefixLength: c.Routes.PrefixLength,
		},
	}

	if c.Agency != nil {
		opts.Agency = model.Agency{
			ID:       c.Agency.ID,
			Name:     c.Agency.Name,
			URL:      c.Agency.URL,
			Timezone: c.Agency.Timezone,
			Lang:     c.Agency.Lang,
			Phone:    c.Agency.Phone,
		}
	}
	if c.Publisher != nil {
		opts.FeedInfo = model.FeedInfo{
			PublisherName: c.Publisher.Name,
			PublisherURL:  c.Publisher.URL,
			Lang:          c.Publisher.Lang,
		}
	}

	return opts
}

func (c *Config) GetOptions() downloader.GetOptions {
	return downloader.GetOptions{
		MaxSize:       c.Input.MaxSize,
		Timeout:       c.Input.Timeout,
		Retries:       *c.Input.Retries,
		RetryInterval: c.Input.RetryInterval,
	}
}
