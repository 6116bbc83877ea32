// Package config wraps go-ucfg the way confengine does: a thin Config type
// over *ucfg.Config, plus the engine's own typed settings struct covering
// every key from SPEC_FULL.md's configuration section.
package config

import (
	"time"

	"github.com/elastic/go-ucfg"
	"github.com/elastic/go-ucfg/yaml"
	"github.com/pkg/errors"
)

// Config wraps ucfg.Config and provides the same convenience accessors the
// rest of the corpus uses.
type Config struct {
	conf *ucfg.Config
}

func New(conf *ucfg.Config) *Config {
	return &Config{conf: conf}
}

func (c *Config) Has(s string) bool {
	ok, err := c.conf.Has(s, -1)
	if err != nil {
		return false
	}
	return ok
}

func (c *Config) Child(s string) (*Config, error) {
	content, err := c.conf.Child(s, -1)
	if err != nil {
		return nil, err
	}
	return &Config{conf: content}, nil
}

func (c *Config) Unpack(to any) error {
	return c.conf.Unpack(to)
}

func (c *Config) UnpackChild(s string, to any) error {
	content, err := c.conf.Child(s, -1)
	if err != nil {
		return err
	}
	return content.Unpack(to)
}

// LoadPath reads a YAML config file from disk.
func LoadPath(path string) (*Config, error) {
	conf, err := yaml.NewConfigWithFile(path, ucfg.PathSep("."))
	if err != nil {
		return nil, errors.Wrapf(err, "load config file %s", path)
	}
	return New(conf), nil
}

// LoadContent parses YAML config bytes already in memory.
func LoadContent(b []byte) (*Config, error) {
	conf, err := yaml.NewConfig(b)
	if err != nil {
		return nil, err
	}
	return New(conf), nil
}

// Engine is the engine's top-level settings, unpacked from the "engine" key
// of the loaded config document.
type Engine struct {
	Address string `config:"address"`

	// Connection accounting (spec §5.E).
	MaxConnections    int           `config:"maxConnections"`
	AcceptorThreads   int           `config:"acceptorThreads"`
	MaxWorkerThreads  int           `config:"maxWorkerThreads"`
	ConnectionTimeout time.Duration `config:"connectionTimeout"`
	KeepAliveTimeout  time.Duration `config:"keepAliveTimeout"`
	MaxKeepAliveCount int           `config:"maxKeepAliveRequests"`

	// Parsing limits (spec §4.B).
	MaxHeaderBytes  int `config:"maxHeaderBytes"`
	MaxHeaderCount  int `config:"maxHeaderCount"`
	MaxRequestLine  int `config:"maxRequestLineBytes"`

	// Output buffering (spec §4.C).
	SocketBufferBytes int `config:"socketBufferBytes"`

	// RejectIllegalHeaderName mirrors the Tomcat-style strict/lenient
	// header-name toggle resolved as an Open Question in DESIGN.md.
	RejectIllegalHeaderName bool `config:"rejectIllegalHeaderName"`

	Logger struct {
		Level string `config:"level"`
	} `config:"logger"`

	Metrics struct {
		Enabled bool   `config:"enabled"`
		Address string `config:"address"`
	} `config:"metrics"`
}

// Defaults returns an Engine with every field set to the engine's built-in
// defaults, applied before unpacking the user's config over them.
func Defaults() Engine {
	return Engine{
		Address:           ":8080",
		MaxConnections:    10000,
		AcceptorThreads:   1,
		MaxWorkerThreads:  200,
		ConnectionTimeout: 20 * time.Second,
		KeepAliveTimeout:  60 * time.Second,
		MaxKeepAliveCount: 100,
		MaxHeaderBytes:    8192,
		MaxHeaderCount:    100,
		MaxRequestLine:    8192,
		SocketBufferBytes: 0,
	}
}

// LoadEngine loads the "engine" section over the built-in defaults.
func LoadEngine(c *Config) (Engine, error) {
	eng := Defaults()
	if c == nil || !c.Has("engine") {
		return eng, nil
	}
	if err := c.UnpackChild("engine", &eng); err != nil {
		return eng, errors.Wrap(err, "unpack engine config")
	}
	return eng, nil
}
