// Package config loads the YAML configuration shared by the graphdump tool
// and the examples, and bootstraps the logger and graph store it describes.
package config

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	yaml "gopkg.in/yaml.v2"
)

const (
	DriverNeo4j  string = "neo4j"
	DriverBadger string = "badger"
	DriverMemory string = "memory"
)

type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type BadgerConfig struct {
	Dir      string `yaml:"dir"`
	InMemory bool   `yaml:"inMemory"`
}

type StoreConfig struct {
	Driver string       `yaml:"driver"`
	Neo4j  Neo4jConfig  `yaml:"neo4j"`
	Badger BadgerConfig `yaml:"badger"`
	// Prefix scopes the key-value stores within a shared engine.
	Prefix []string `yaml:"prefix"`
}

type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Store   StoreConfig   `yaml:"store"`
}

// LoadConfiguration reads a YAML configuration. Missing values get their
// defaults: the memory driver, database "neo4j" and the prefix [ogm].
func LoadConfiguration(data io.Reader) (*Config, error) {
	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err = yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse configuration: %w", err)
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DriverMemory
	}
	if cfg.Store.Neo4j.Database == "" {
		cfg.Store.Neo4j.Database = "neo4j"
	}
	if len(cfg.Store.Prefix) == 0 {
		cfg.Store.Prefix = []string{"ogm"}
	}

	return cfg, cfg.Validate()
}

// Validate reports every problem of the configuration at once.
func (c *Config) Validate() error {
	var errs error

	switch c.Store.Driver {
	case DriverNeo4j:
		if c.Store.Neo4j.URI == "" {
			errs = multierr.Append(errs, errors.New("store.neo4j.uri is required"))
		}
		if c.Store.Neo4j.Username == "" {
			errs = multierr.Append(errs, errors.New("store.neo4j.username is required"))
		}
	case DriverBadger:
		if c.Store.Badger.Dir == "" && !c.Store.Badger.InMemory {
			errs = multierr.Append(errs, errors.New("store.badger.dir is required unless inMemory is set"))
		}
	case DriverMemory:
	default:
		errs = multierr.Append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}

	for i, seg := range c.Store.Prefix {
		if seg == "" {
			errs = multierr.Append(errs, fmt.Errorf("store.prefix[%d] is empty", i))
		}
	}

	return errs
}

// NewLogger builds a verbose development logger writing to stdout in debug
// mode, and a production logger otherwise.
func NewLogger(cfg LoggingConfig) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	if cfg.Debug {
		z := zap.NewDevelopmentConfig()
		z.OutputPaths = []string{"stdout"}
		logger, err = z.Build()
	} else {
		logger, err = zap.NewProduction()
	}

	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
