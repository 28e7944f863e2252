// Package config loads the parasort configuration: embedded defaults, an
// optional YAML file and PARASORT_* environment overrides, validated and
// compiled into the read-only tables the pipeline runs on.
package config

import (
	"time"

	"github.com/abhisek/parasort/internal/llm"
	"github.com/abhisek/parasort/internal/logging"
	"github.com/abhisek/parasort/internal/similarity"
)

// EnvPrefix is the prefix of environment overrides. A double underscore
// separates nesting levels: PARASORT_CLASSIFIER__THRESHOLD=0.6.
const EnvPrefix = "PARASORT_"

// SupportedMajor is the configuration major version this build reads.
const SupportedMajor = "v1"

// Config is the full application configuration.
type Config struct {
	Version    string                    `koanf:"version"`
	Classifier ClassifierConfig          `koanf:"classifier"`
	Categories map[string]CategoryConfig `koanf:"categories"`
	Mapping    MappingConfig             `koanf:"mapping"`
	Tags       TagsConfig                `koanf:"tags"`
	Learning   LearningConfig            `koanf:"learning"`
	Similarity similarity.Config         `koanf:"similarity"`
	LLM        llm.Config                `koanf:"llm"`
	Log        logging.Config            `koanf:"log"`
	Engine     EngineConfig              `koanf:"engine"`
	Vault      VaultConfig               `koanf:"vault"`
}

// ClassifierConfig holds the decision policy.
type ClassifierConfig struct {
	Threshold  float64  `koanf:"threshold"`
	TieEpsilon float64  `koanf:"tie_epsilon"`
	Epsilon    float64  `koanf:"epsilon"`
	Fallback   string   `koanf:"fallback"`
	Priority   []string `koanf:"priority"`
}

// CategoryConfig is the rule table of one category.
type CategoryConfig struct {
	Disabled  bool               `koanf:"disabled"`
	Template  string             `koanf:"template"`
	Keywords  map[string]float64 `koanf:"keywords"`
	Patterns  []PatternConfig    `koanf:"patterns"`
	Flags     map[string]float64 `koanf:"flags"`
	Senders   []SenderConfig     `koanf:"senders"`
	Exemplars []string           `koanf:"exemplars"`
}

// PatternConfig is a named regular expression rule.
type PatternConfig struct {
	Name   string  `koanf:"name"`
	Regex  string  `koanf:"regex"`
	Weight float64 `koanf:"weight"`
}

// SenderConfig is a sender rule. Senders are a list rather than a map
// because domains contain the key delimiter.
type SenderConfig struct {
	Match  string  `koanf:"match"`
	Weight float64 `koanf:"weight"`
}

// MappingConfig is the PARA decision table.
type MappingConfig struct {
	Rows    []RowConfig       `koanf:"rows"`
	Folders map[string]string `koanf:"folders"`
}

// RowConfig is one decision table row.
type RowConfig struct {
	Category string `koanf:"category"`
	When     string `koanf:"when"`
	Bucket   string `koanf:"bucket"`
}

// TagsConfig configures the tag extractor.
type TagsConfig struct {
	MaxKeywords int            `koanf:"max_keywords"`
	MinLength   int            `koanf:"min_length"`
	StopWords   []string       `koanf:"stop_words"`
	Priority    PriorityConfig `koanf:"priority"`
	Background  struct {
		Documents   int            `koanf:"documents"`
		Frequencies map[string]int `koanf:"frequencies"`
	} `koanf:"background"`
}

// PriorityConfig lists the priority keywords per level.
type PriorityConfig struct {
	Urgent    []string `koanf:"urgent"`
	Important []string `koanf:"important"`
	Low       []string `koanf:"low"`
}

// LearningConfig configures weight recomputation.
type LearningConfig struct {
	Step           float64 `koanf:"step"`
	MinWeight      float64 `koanf:"min_weight"`
	MaxWeight      float64 `koanf:"max_weight"`
	FallbackWeight float64 `koanf:"fallback_weight"`
	Window         int     `koanf:"window"`
	KeepSnapshots  int     `koanf:"keep_snapshots"`
}

// EngineConfig configures the classification engine.
type EngineConfig struct {
	Workers        int      `koanf:"workers"`
	PersistHistory bool     `koanf:"persist_history"`
	ActiveProjects []string `koanf:"active_projects"`
}

// VaultConfig configures vault reads and watch mode.
type VaultConfig struct {
	Inbox      string        `koanf:"inbox"`
	Extensions []string      `koanf:"extensions"`
	Debounce   time.Duration `koanf:"debounce"`
}

// applyDefaults fills zero values the schema allows to be omitted.
func applyDefaults(cfg *Config) {
	if cfg.Engine.Workers <= 0 {
		cfg.Engine.Workers = 4
	}
	if cfg.Learning.Window <= 0 {
		cfg.Learning.Window = 500
	}
	if cfg.Learning.KeepSnapshots <= 0 {
		cfg.Learning.KeepSnapshots = 10
	}
	if cfg.Vault.Debounce <= 0 {
		cfg.Vault.Debounce = 250 * time.Millisecond
	}
	if len(cfg.Vault.Extensions) == 0 {
		cfg.Vault.Extensions = []string{".md"}
	}
	if cfg.Similarity.Provider == "" {
		cfg.Similarity.Provider = similarity.KindNone
	}
	if cfg.Similarity.Timeout <= 0 {
		cfg.Similarity.Timeout = similarity.DefaultConfig().Timeout
	}
}
