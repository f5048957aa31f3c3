package services

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/iota-uz/franchise-core/modules/permission/domain/grant"
)

// ImplicationTable maps the level a subject holds on an ancestor node to
// the level implied on a descendant. Inheritance deliberately steps down
// one rank (except read), so holding a region does not silently confer the
// same authority over every location beneath it.
type ImplicationTable map[grant.Level]grant.Level

func DefaultImplicationTable() ImplicationTable {
	return ImplicationTable{
		grant.LevelOwner: grant.LevelAdmin,
		grant.LevelAdmin: grant.LevelWrite,
		grant.LevelWrite: grant.LevelRead,
		grant.LevelRead:  grant.LevelRead,
	}
}

// Implied returns the descendant level for an ancestor level. Unknown
// levels imply nothing.
func (t ImplicationTable) Implied(ancestor grant.Level) (grant.Level, bool) {
	implied, ok := t[ancestor]
	return implied, ok
}

type implicationFile struct {
	Implications map[string]string `yaml:"implications"`
}

// LoadImplicationTable reads a YAML override of the built-in table.
func LoadImplicationTable(path string) (ImplicationTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read implication table %s: %w", path, err)
	}
	var file implicationFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse implication table %s: %w", path, err)
	}

	table := make(ImplicationTable, len(file.Implications))
	for from, to := range file.Implications {
		fromLevel, err := grant.ParseLevel(from)
		if err != nil {
			return nil, fmt.Errorf("implication table %s: %w", path, err)
		}
		toLevel, err := grant.ParseLevel(to)
		if err != nil {
			return nil, fmt.Errorf("implication table %s: %w", path, err)
		}
		if toLevel.Rank() > fromLevel.Rank() {
			return nil, fmt.Errorf("implication table %s: %s may not imply the higher level %s", path, fromLevel, toLevel)
		}
		table[fromLevel] = toLevel
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("implication table %s: no implications defined", path)
	}
	return table, nil
}
