package menu

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// Item represents one entry in the menu catalog
type Item struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category,omitempty"`
	Available   bool            `json:"available"`
}

// Catalog provides the current menu
type Catalog interface {
	Items(ctx context.Context) ([]Item, error)
}

// Match resolves a spoken item name against the catalog. The match is
// case-insensitive and bidirectional: a catalog name containing the
// spoken name matches, and so does a spoken name containing the
// catalog name. When no substring match exists, a second pass accepts
// spoken words within edit distance 1 of a catalog word, so common
// transcription typos ("chiken") still resolve. Among multiple matches
// the longest catalog name wins; ties fall back to catalog order.
// Unavailable items never match.
func Match(items []Item, name string) (Item, bool) {
	spoken := strings.ToLower(strings.TrimSpace(name))
	if spoken == "" {
		return Item{}, false
	}

	if it, ok := bestMatch(items, func(catalog string) bool {
		return strings.Contains(catalog, spoken) || strings.Contains(spoken, catalog)
	}); ok {
		return it, true
	}

	spokenWords := strings.Fields(spoken)
	return bestMatch(items, func(catalog string) bool {
		for _, cw := range strings.Fields(catalog) {
			for _, sw := range spokenWords {
				if len(sw) >= 4 && editDistance(cw, sw) <= 1 {
					return true
				}
			}
		}
		return false
	})
}

func bestMatch(items []Item, matches func(catalogName string) bool) (Item, bool) {
	var best Item
	found := false
	for _, it := range items {
		if !it.Available {
			continue
		}
		if !matches(strings.ToLower(it.Name)) {
			continue
		}
		if !found || len(it.Name) > len(best.Name) {
			best = it
			found = true
		}
	}
	return best, found
}

// editDistance is the Levenshtein distance between two short words
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// StaticCatalog serves a fixed in-memory menu
type StaticCatalog struct {
	items []Item
}

// NewStaticCatalog creates a catalog over the given items
func NewStaticCatalog(items []Item) *StaticCatalog {
	return &StaticCatalog{items: items}
}

// Items returns the full menu
func (c *StaticCatalog) Items(ctx context.Context) ([]Item, error) {
	items := make([]Item, len(c.items))
	copy(items, c.items)
	return items, nil
}

// DefaultMenu returns the menu seeded into an empty database.
func DefaultMenu() []Item {
	price := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }
	return []Item{
		{ID: "burger-classic", Name: "Classic Burger", Description: "Quarter-pound beef patty with lettuce, tomato, and house sauce", Price: price("10.00"), Category: "mains", Available: true},
		{ID: "chicken-sandwich", Name: "Chicken Sandwich", Description: "Crispy fried chicken with pickles and slaw", Price: price("9.50"), Category: "mains", Available: true},
		{ID: "caesar-salad", Name: "Caesar Salad", Description: "Romaine, parmesan, croutons", Price: price("8.00"), Category: "mains", Available: true},
		{ID: "fries", Name: "French Fries", Description: "Hand-cut, double-fried", Price: price("4.00"), Category: "sides", Available: true},
		{ID: "onion-rings", Name: "Onion Rings", Price: price("4.50"), Category: "sides", Available: true},
		{ID: "soda", Name: "Fountain Soda", Price: price("2.50"), Category: "drinks", Available: true},
		{ID: "iced-tea", Name: "Iced Tea", Price: price("2.75"), Category: "drinks", Available: true},
		{ID: "milkshake", Name: "Vanilla Milkshake", Price: price("5.50"), Category: "drinks", Available: true},
	}
}
