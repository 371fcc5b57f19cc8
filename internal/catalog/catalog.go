// Package catalog resolves the media a model reply asks for: menu item
// images, composite images of split pizzas, the menu card and synthesized
// speech.
package catalog

import (
	"errors"
	"strings"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/textutil"
)

var ErrNotFound = errors.New("catalog: item not found")

// Catalog indexes menu items by identifier.
type Catalog struct {
	items []domain.MenuItem
	byID  map[string]int
}

func New(items []domain.MenuItem) *Catalog {
	c := &Catalog{items: append([]domain.MenuItem(nil), items...), byID: make(map[string]int, len(items))}
	for i, it := range c.items {
		id := strings.ToLower(strings.TrimSpace(it.Identifier))
		if id == "" {
			id = domain.MenuIdentifier(it.Category, it.Name)
			c.items[i].Identifier = id
		}
		if _, dup := c.byID[id]; !dup {
			c.byID[id] = i
		}
	}
	return c
}

func (c *Catalog) Items() []domain.MenuItem {
	return c.items
}

// ByIdentifier is an exact, case-insensitive identifier lookup.
func (c *Catalog) ByIdentifier(id string) (domain.MenuItem, bool) {
	i, ok := c.byID[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return domain.MenuItem{}, false
	}
	return c.items[i], true
}

// Lookup returns the item with the exact identifier regardless of its assets,
// falling back to Find.
func (c *Catalog) Lookup(id string) (domain.MenuItem, bool) {
	if it, ok := c.ByIdentifier(id); ok {
		return it, true
	}
	it, err := c.Find(id)
	return it, err == nil
}

// Find resolves id to an available item with a general image. It tries the
// exact identifier, then the identifier's trailing segment against item
// names, then a broad match on identifier or name. Within each stage the
// first available item with a general image wins.
func (c *Catalog) Find(id string) (domain.MenuItem, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return domain.MenuItem{}, ErrNotFound
	}

	if it, ok := c.ByIdentifier(id); ok && displayable(it) {
		return it, nil
	}

	seg := textutil.Slug(domain.TrailingSegment(id))
	if seg == "" || genericTokens[seg] {
		return domain.MenuItem{}, ErrNotFound
	}
	if it, ok := c.first(func(it domain.MenuItem) bool {
		name := textutil.Slug(it.Name)
		return name != "" && (name == seg || strings.Contains(name, seg) || strings.Contains(seg, name))
	}); ok {
		return it, nil
	}

	whole := textutil.Slug(id)
	tokens := significantTokens(seg)
	if it, ok := c.first(func(it domain.MenuItem) bool {
		name := textutil.Slug(it.Name)
		if strings.Contains(it.Identifier, whole) || strings.Contains(name, seg) {
			return true
		}
		for _, tok := range tokens {
			if strings.Contains(it.Identifier, tok) || strings.Contains(name, tok) {
				return true
			}
		}
		return false
	}); ok {
		return it, nil
	}
	return domain.MenuItem{}, ErrNotFound
}

func (c *Catalog) first(match func(domain.MenuItem) bool) (domain.MenuItem, bool) {
	for _, it := range c.items {
		if displayable(it) && match(it) {
			return it, true
		}
	}
	return domain.MenuItem{}, false
}

func displayable(it domain.MenuItem) bool {
	return it.Available && it.Images.General != ""
}

// "pizza" alone would match every pizza on the menu.
var genericTokens = map[string]bool{"pizza": true, "pizzas": true, "de": true, "com": true, "sabor": true}

func significantTokens(seg string) []string {
	var out []string
	for _, tok := range strings.Split(seg, "-") {
		if len(tok) > 3 && !genericTokens[tok] {
			out = append(out, tok)
		}
	}
	return out
}
