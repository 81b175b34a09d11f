package dispatch

import (
	"context"
	"regexp"
	"strings"

	"github.com/bucketworks/kiosk/pkg/core/catalog"
)

var andWord = regexp.MustCompile(`(?i)\s+and\s+`)

// normalizeKey canonicalizes a spoken product reference: trimmed, uppercased,
// with the word "and" collapsed to "&" to match catalog naming.
func normalizeKey(raw string) string {
	return strings.ToUpper(andWord.ReplaceAllString(strings.TrimSpace(raw), " & "))
}

// resolution is the outcome of resolving a spoken reference to a product.
// Exactly one of product, options, or err is set on a non-miss; all empty
// means not found.
type resolution struct {
	product *catalog.Product
	options []string
	err     error
}

// resolve maps a normalized reference to a product. Stages, in order:
// exact id or name match against the visible products, substring match in
// either direction, then the service's fuzzy search. Within fuzzy results an
// exact name match wins outright; a result count inside the disambiguation
// band asks for clarification; otherwise the top match is taken.
func (d *Dispatcher) resolve(ctx context.Context, inputID string, visible []catalog.Product) resolution {
	key := strings.ToLower(inputID)

	for i := range visible {
		if strings.ToLower(visible[i].ID) == key || strings.ToLower(visible[i].Name) == key {
			return resolution{product: &visible[i]}
		}
	}
	for i := range visible {
		name := strings.ToLower(visible[i].Name)
		if strings.Contains(name, key) || strings.Contains(key, name) {
			return resolution{product: &visible[i]}
		}
	}

	d.logger.Debug("product not in view, fuzzy searching", "query", inputID)
	matches, err := d.catalog.FuzzySearch(ctx, inputID)
	if err != nil {
		return resolution{err: err}
	}
	if len(matches) == 0 {
		return resolution{}
	}

	for i := range matches {
		if strings.EqualFold(matches[i].Name, inputID) {
			return resolution{product: &matches[i]}
		}
	}
	if len(matches) >= d.cfg.DisambiguateMin && len(matches) <= d.cfg.DisambiguateMax {
		options := make([]string, len(matches))
		for i, m := range matches {
			options[i] = m.Name
		}
		return resolution{options: options}
	}
	return resolution{product: &matches[0]}
}
