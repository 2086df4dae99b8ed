package notify

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is a Translator backed by a YAML document of the form
//
//	en:
//	  order.shipped: "Order :id has shipped"
//	ar:
//	  order.shipped: "..."
//
// Placeholders are written :name. A key missing for a locale translates to
// the key itself.
type Catalog struct {
	entries map[Locale]map[string]string
}

// LoadCatalog reads a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var raw map[string]map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse translation catalog: %w", err)
	}
	c := &Catalog{entries: make(map[Locale]map[string]string, len(raw))}
	for locale, keys := range raw {
		c.entries[Locale(locale)] = keys
	}
	return c, nil
}

// Translate implements Translator.
func (c *Catalog) Translate(key string, vars map[string]string, locale Locale) string {
	template, ok := c.entries[locale][key]
	if !ok {
		return key
	}
	return replacePlaceholders(template, vars)
}

// replacePlaceholders substitutes longer names first so :name does not
// clobber :name_full.
func replacePlaceholders(template string, vars map[string]string) string {
	if len(vars) == 0 {
		return template
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })

	pairs := make([]string, 0, len(names)*2)
	for _, name := range names {
		pairs = append(pairs, ":"+name, vars[name])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
