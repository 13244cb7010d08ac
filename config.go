package etlkit

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Default store settings
const (
	DefaultHDFKey       = "df"
	DefaultDynamoRegion = "us-east-1"
)

// StoreConfig holds the kind-specific construction parameters of a store.
// SQL stores read URL/Driver/Schema/Table, HDF stores Path/Filename/Key,
// DynamoDB stores Table/Region. Conn carries a pre-built connection object
// (a *store.Engine or a store.DynamoDBClient) and is never read from files.
type StoreConfig struct {
	URL      string         `yaml:"url,omitempty" json:"url,omitempty"`
	Driver   string         `yaml:"driver,omitempty" json:"driver,omitempty"`
	Schema   string         `yaml:"schema,omitempty" json:"schema,omitempty"`
	Table    string         `yaml:"table,omitempty" json:"table,omitempty"`
	Path     string         `yaml:"path,omitempty" json:"path,omitempty"`
	Filename string         `yaml:"filename,omitempty" json:"filename,omitempty"`
	Key      string         `yaml:"key,omitempty" json:"key,omitempty"`
	Region   string         `yaml:"region,omitempty" json:"region,omitempty"`
	Options  map[string]any `yaml:"options,omitempty" json:"options,omitempty"`
	Conn     any            `yaml:"-" json:"-"`
}

// SourceConfig declares one store of a pipeline
type SourceConfig struct {
	Kind        string `yaml:"kind" json:"kind" validate:"required"`
	Name        string `yaml:"name" json:"name" validate:"required"`
	Type        string `yaml:"stype" json:"stype" validate:"stype"`
	StoreConfig `yaml:",inline"`
}

// Config is the file representation of a pipeline
type Config struct {
	LogLevel string         `yaml:"log_level,omitempty" json:"log_level,omitempty" validate:"omitempty,loglevel"`
	Sources  []SourceConfig `yaml:"sources" json:"sources" validate:"unique=Name,dive"`
}

// LoadConfig reads a YAML pipeline config from disk
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, NewError(ErrCodeConfig, "failed to read config file").Wrap(err)
	}
	return ParseConfig(raw)
}

// ParseConfig decodes a YAML pipeline config. ${VAR} references are expanded
// from the environment before decoding.
func ParseConfig(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, NewError(ErrCodeConfig, "failed to parse config").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("stype", func(fl validator.FieldLevel) bool {
		return StoreType(strings.ToLower(fl.Field().String())).Valid()
	})
	_ = v.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		_, err := zerolog.ParseLevel(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks that every source is complete and uniquely named
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return c.validationError(err)
	}
	return nil
}

// validationError maps the first failed field onto an *Error
func (c *Config) validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return NewError(ErrCodeConfig, "invalid config").Wrap(err)
	}

	fe := verrs[0]
	var msg string
	switch fe.Tag() {
	case "unique":
		dups := lo.FindDuplicatesBy(c.Sources, func(s SourceConfig) string { return s.Name })
		if len(dups) > 0 {
			return NewStoreError(ErrCodeDuplicateName, dups[0].Name, "source declared twice").Wrap(err)
		}
		msg = "source names need to be unique"
	case "required":
		msg = fmt.Sprintf("%s is required", fe.Namespace())
	case "stype":
		msg = fmt.Sprintf("%s %q needs to be one of %v", fe.Namespace(), fe.Value(), StoreTypes)
	case "loglevel":
		msg = fmt.Sprintf("invalid log_level %q", fe.Value())
	default:
		msg = fmt.Sprintf("%s failed %s validation", fe.Namespace(), fe.Tag())
	}
	return NewError(ErrCodeConfig, msg).Wrap(err)
}

// StoreFactory constructs a store of one kind
type StoreFactory func(name string, stype StoreType, cfg StoreConfig, logger zerolog.Logger) (Store, error)

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the pipeline logger
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithKinds registers every store kind in kinds
func WithKinds(kinds map[string]StoreFactory) Option {
	return func(p *Pipeline) {
		for kind, factory := range kinds {
			p.kinds[strings.ToLower(kind)] = factory
		}
	}
}

// WithKind registers a single store kind
func WithKind(kind string, factory StoreFactory) Option {
	return func(p *Pipeline) {
		p.kinds[strings.ToLower(kind)] = factory
	}
}
