package classify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the heuristic keyword and pattern lists. Keeping these as data
// lets operators tune classification without touching the scan algorithm.
type Config struct {
	// Keywords matched as case-insensitive substrings of subject or sender.
	Keywords []string `yaml:"keywords"`

	// BodyPatterns are regular expressions (compiled case-insensitive,
	// dot-matches-newline) matched against the plain-text body.
	BodyPatterns []string `yaml:"body_patterns"`

	// LinkKeywords select href values worth keeping as candidate links.
	LinkKeywords []string `yaml:"link_keywords"`

	// URLKeywords select bare URLs worth keeping as candidate links.
	URLKeywords []string `yaml:"url_keywords"`

	// AmountWindow is the number of characters searched on each side of a
	// link for a nearby currency amount.
	AmountWindow int `yaml:"amount_window"`
}

// DefaultConfig returns the built-in multilingual heuristics.
func DefaultConfig() Config {
	return Config{
		Keywords: []string{
			"invoice", "factura", "rechnung", "fattura", "facture",
			"receipt", "bill", "payment", "order confirmation",
			"your order", "purchase", "transaction",
		},
		BodyPatterns: []string{
			`download.*invoice`,
			`view.*invoice`,
			`invoice.*pdf`,
			`get.*receipt`,
			`download.*receipt`,
		},
		LinkKeywords: []string{"invoice", "receipt", "download"},
		URLKeywords:  []string{"invoice", "receipt", "download", "pdf"},
		AmountWindow: 250,
	}
}

// LoadConfig reads a YAML heuristics file. Missing fields fall back to the
// defaults, so a partial override file is fine.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read classifier config: %w", err)
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return cfg, fmt.Errorf("parse classifier config %s: %w", path, err)
	}

	if len(override.Keywords) > 0 {
		cfg.Keywords = override.Keywords
	}
	if len(override.BodyPatterns) > 0 {
		cfg.BodyPatterns = override.BodyPatterns
	}
	if len(override.LinkKeywords) > 0 {
		cfg.LinkKeywords = override.LinkKeywords
	}
	if len(override.URLKeywords) > 0 {
		cfg.URLKeywords = override.URLKeywords
	}
	if override.AmountWindow > 0 {
		cfg.AmountWindow = override.AmountWindow
	}
	return cfg, nil
}
