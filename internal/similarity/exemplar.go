package similarity

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Exemplar is a labelled reference note. IDs are conventionally
// "<category>/<name>" so category rules can match them with globs.
type Exemplar struct {
	ID   string `koanf:"id" yaml:"id"`
	Text string `koanf:"text" yaml:"text"`
}

type exemplarFile struct {
	Exemplars []Exemplar `yaml:"exemplars"`
}

// LoadExemplars reads a YAML file with a top-level "exemplars" list.
func LoadExemplars(path string) ([]Exemplar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read exemplars: %w", err)
	}
	var f exemplarFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse exemplars %s: %w", path, err)
	}
	if err := validateExemplars(f.Exemplars); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f.Exemplars, nil
}

func validateExemplars(exemplars []Exemplar) error {
	seen := make(map[string]bool, len(exemplars))
	for i, ex := range exemplars {
		if strings.TrimSpace(ex.ID) == "" {
			return fmt.Errorf("exemplar %d: id is empty", i)
		}
		if strings.TrimSpace(ex.Text) == "" {
			return fmt.Errorf("exemplar %q: text is empty", ex.ID)
		}
		if seen[ex.ID] {
			return fmt.Errorf("exemplar %q: defined twice", ex.ID)
		}
		seen[ex.ID] = true
	}
	return nil
}
