package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/mod/semver"

	"github.com/abhisek/parasort/internal/rules"
	"github.com/abhisek/parasort/internal/similarity"
)

const maxConfigFileSize = 1024 * 1024

//go:embed defaults.yaml
var defaultsYAML []byte

//go:embed schema.json
var schemaJSON []byte

// Defaults returns the embedded default document.
func Defaults() []byte {
	return bytes.Clone(defaultsYAML)
}

// DefaultPath returns ~/.config/parasort/config.yaml, or the platform
// equivalent.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "parasort", "config.yaml")
}

// Load builds the configuration. Precedence, highest first:
//
//  1. PARASORT_* environment variables
//  2. the YAML file at path
//  3. the embedded defaults
//
// An empty path means DefaultPath, which may be absent. An explicit path
// must exist. The merged document is checked against the embedded JSON
// schema before environment overrides are applied; the decoded values are
// checked again afterwards.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultsYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	optional := path == ""
	if optional {
		path = DefaultPath()
	}
	if path != "" {
		content, err := readConfigFile(path)
		switch {
		case err == nil:
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		case optional && errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}

	if err := validateDocument(k.Raw()); err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	cfg.LLM = cfg.LLM.WithDiscoveredKeys()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps PARASORT_LEARNING__MAX_WEIGHT to learning.max_weight.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return io.ReadAll(f)
}

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func documentSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("parse config schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		const url = "schema://parasort/config.json"
		if err := c.AddResource(url, doc); err != nil {
			schemaErr = fmt.Errorf("add config schema: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(url)
	})
	return compiledSchema, schemaErr
}

// validateDocument checks the merged YAML document against the schema.
// The document is round-tripped through JSON so the validator sees the
// same value kinds it would for a JSON file.
func validateDocument(raw map[string]any) error {
	schema, err := documentSchema()
	if err != nil {
		return &rules.ConfigurationError{Reason: "config schema is unusable", Err: err}
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode config document: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode config document: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return &rules.ValidationError{Field: "config", Reason: err.Error()}
	}
	return nil
}

// Validate runs the checks that do not need compiled tables.
func (c *Config) Validate() error {
	v := c.Version
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return &rules.ValidationError{Field: "version", Value: c.Version, Reason: "not a semantic version"}
	}
	if semver.Major(v) != SupportedMajor {
		return &rules.ConfigurationError{Reason: fmt.Sprintf("config version %s is not supported (want %s.x)", c.Version, SupportedMajor)}
	}

	if len(c.enabledCategories()) == 0 {
		return &rules.ValidationError{Field: "categories", Reason: "every category is disabled"}
	}
	if err := c.LearningParams().Validate(); err != nil {
		return err
	}

	switch c.Similarity.Provider {
	case similarity.KindNone, similarity.KindIndex, similarity.KindJudge:
	default:
		return &rules.ValidationError{Field: "similarity.provider", Value: c.Similarity.Provider, Reason: "want none, index or judge"}
	}
	if c.Similarity.Threshold < 0 || c.Similarity.Threshold > 1 {
		return &rules.ValidationError{Field: "similarity.threshold", Value: fmt.Sprint(c.Similarity.Threshold), Reason: "must be within [0,1]"}
	}
	if c.Similarity.Provider != similarity.KindNone {
		if err := c.LLM.Validate(); err != nil {
			return &rules.ConfigurationError{Reason: "llm section", Err: err}
		}
	}
	return nil
}
