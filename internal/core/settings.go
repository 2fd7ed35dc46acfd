package core

import (
	"encoding/json"
	"fmt"
)

// Settings is the user configuration document: categories, classification
// rules and budgets. It is replaced wholesale on every write; there are no
// partial-patch semantics.
type Settings struct {
	Categories []Category `json:"categories"`
	Rules      []Rule     `json:"rules"`
	Budgets    []Budget   `json:"budgets"`
}

// ParseSettings decodes a settings document. Legacy shapes (bare-string
// categories, single-condition rules) are upgraded during decoding.
func ParseSettings(data []byte) (Settings, error) {
	var s Settings
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings document: %w", err)
	}
	return s, nil
}

// CategoryNames returns the configured category names in declaration order.
func (s Settings) CategoryNames() []string {
	names := make([]string, 0, len(s.Categories))
	for _, c := range s.Categories {
		names = append(names, c.Name)
	}
	return names
}

// KnownCategory reports whether name is a configured category or a category
// produced by some rule. Reconciliation queries naming anything else are a
// not-found failure.
func (s Settings) KnownCategory(name string) bool {
	for _, c := range s.Categories {
		if c.Name == name {
			return true
		}
	}
	for _, r := range s.Rules {
		if r.Category == name {
			return true
		}
	}
	return name == Uncategorized
}
