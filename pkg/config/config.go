// Copyright 2026 The Parca Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/prometheus/common/model"
	"github.com/thanos-io/objstore/client"
	"gopkg.in/yaml.v3"

	"github.com/parca-dev/stackgraph/pkg/profile"
	"github.com/parca-dev/stackgraph/pkg/transform"
)

// Config is the top-level configuration for stackgraph's config files.
type Config struct {
	Source Source `yaml:"source"`
	Engine Engine `yaml:"engine,omitempty"`
	Server Server `yaml:"server,omitempty"`
}

// Source locates the profile to load. Without a bucket Path is a local
// file, otherwise it is an object name in the bucket.
type Source struct {
	Path   string               `yaml:"path"`
	Bucket *client.BucketConfig `yaml:"bucket,omitempty"`
}

// Engine configures how threads are derived.
type Engine struct {
	Invert         bool   `yaml:"invert,omitempty"`
	Implementation string `yaml:"implementation,omitempty"`
	// DefaultTransforms is a per-thread transform stack in URL form, for
	// example "0:mf-3~df-5".
	DefaultTransforms string `yaml:"default_transforms,omitempty"`
	// Interval overrides the sampling interval of the profile.
	Interval model.Duration `yaml:"interval,omitempty"`
}

type Server struct {
	Address            string   `yaml:"address,omitempty"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Engine: Engine{
			Implementation: string(profile.ImplementationCombined),
		},
		Server: Server{
			Address: ":7171",
		},
	}
}

// SetDirectory joins a relative local source path with dir.
func (c *Config) SetDirectory(dir string) {
	if c.Source.Bucket == nil && c.Source.Path != "" && !filepath.IsAbs(c.Source.Path) {
		c.Source.Path = filepath.Join(dir, c.Source.Path)
	}
}

// Load parses the YAML input s into a Config. Unknown fields are rejected.
func Load(s string) (*Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewBufferString(s))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	return &cfg, nil
}

// LoadFile parses the given YAML file into a Config.
func LoadFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	cfg, err := Load(string(content))
	if err != nil {
		return nil, fmt.Errorf("parsing YAML file %s: %w", filename, err)
	}
	cfg.SetDirectory(filepath.Dir(filename))
	return cfg, nil
}

// Validate returns an error if the config is not valid.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Source, SourceValid),
		validation.Field(&c.Engine, EngineValid),
	)
}

// IntervalMs returns the configured interval in milliseconds, or 0.
func (e Engine) IntervalMs() float64 {
	return float64(time.Duration(e.Interval)) / float64(time.Millisecond)
}

// Transforms parses DefaultTransforms.
func (e Engine) Transforms() (map[transform.ThreadsKey]transform.Stack, error) {
	return transform.ParsePerThread(e.DefaultTransforms)
}
