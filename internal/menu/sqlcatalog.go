package menu

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

// SQLCatalog serves the menu from the SQLite database, creating and
// seeding the table on first use.
type SQLCatalog struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLCatalog creates the menu table if needed and seeds it with the
// default menu when empty.
func NewSQLCatalog(db *sql.DB, logger *slog.Logger) (*SQLCatalog, error) {
	createTable := `
	CREATE TABLE IF NOT EXISTS menu_items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		price TEXT NOT NULL,
		category TEXT,
		available INTEGER NOT NULL DEFAULT 1
	);`

	if _, err := db.Exec(createTable); err != nil {
		return nil, fmt.Errorf("failed to create menu_items table: %w", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM menu_items").Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to count menu items: %w", err)
	}

	if count == 0 {
		for _, it := range DefaultMenu() {
			_, err := db.Exec(
				"INSERT INTO menu_items (id, name, description, price, category, available) VALUES (?, ?, ?, ?, ?, ?)",
				it.ID, it.Name, it.Description, it.Price.String(), it.Category, boolToInt(it.Available),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to seed menu item %s: %w", it.ID, err)
			}
		}
		logger.Info("seeded default menu", "items", len(DefaultMenu()))
	}

	return &SQLCatalog{db: db, logger: logger}, nil
}

// Items returns every menu item in insertion order
func (c *SQLCatalog) Items(ctx context.Context) ([]Item, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT id, name, description, price, category, available FROM menu_items ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to query menu items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var price string
		var available int
		if err := rows.Scan(&it.ID, &it.Name, &it.Description, &price, &it.Category, &available); err != nil {
			return nil, fmt.Errorf("failed to scan menu item: %w", err)
		}
		it.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("invalid price for menu item %s: %w", it.ID, err)
		}
		it.Available = available != 0
		items = append(items, it)
	}
	return items, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
