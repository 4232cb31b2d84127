// Package prompts loads LLM prompt templates by key from files embedded at
// build time.  Templates live in templates/<name>.txt and may contain
// {placeholder} markers filled in by Format.
package prompts

import (
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed templates/*.txt
var files embed.FS

// Load returns the named prompt's text, trimmed of surrounding whitespace.
func Load(name string) (string, error) {
	data, err := files.ReadFile("templates/" + name + ".txt")
	if err != nil {
		return "", fmt.Errorf("prompt %q not found: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Format loads the named prompt and substitutes {key} placeholders with the
// given values.  Unknown placeholders are left in place.
func Format(name string, vars map[string]string) (string, error) {
	text, err := Load(name)
	if err != nil {
		return "", err
	}
	pairs := make([]string, 0, len(vars)*2)
	for key, value := range vars {
		pairs = append(pairs, "{"+key+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(text), nil
}

// List returns the available prompt names in sorted order.
func List() []string {
	entries, err := files.ReadDir("templates")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".txt") {
			names = append(names, strings.TrimSuffix(name, ".txt"))
		}
	}
	sort.Strings(names)
	return names
}
