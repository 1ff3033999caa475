package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"VoiceOrder/internal/session"
)

// Status is an order's position in the kitchen workflow
type Status string

const (
	StatusPending   Status = "pending"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
)

// ErrNotFound is returned when no order exists for a given id.
var ErrNotFound = errors.New("order not found")

// validStatus reports whether s is a known workflow status
func validStatus(s Status) bool {
	switch s {
	case StatusPending, StatusPreparing, StatusReady, StatusCompleted:
		return true
	}
	return false
}

// Order is a finalized order persisted after checkout
type Order struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	TableNumber string          `json:"table_number,omitempty"`
	Items       []session.Item  `json:"items"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Store persists finalized orders in SQLite
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates the order tables if needed
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	createOrders := `
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		table_number TEXT,
		subtotal TEXT,
		tax TEXT,
		total TEXT,
		status TEXT,
		created_at DATETIME
	);`

	createItems := `
	CREATE TABLE IF NOT EXISTS order_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id TEXT,
		menu_item_id TEXT,
		name TEXT,
		unit_price TEXT,
		quantity INTEGER,
		modifications TEXT,
		FOREIGN KEY(order_id) REFERENCES orders(id)
	);`

	if _, err := db.Exec(createOrders); err != nil {
		return nil, fmt.Errorf("failed to create orders table: %w", err)
	}
	if _, err := db.Exec(createItems); err != nil {
		return nil, fmt.Errorf("failed to create order_items table: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// SaveFinal persists a finalized order and its line items in one
// transaction.
func (s *Store) SaveFinal(ctx context.Context, o Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO orders (id, session_id, table_number, subtotal, tax, total, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		o.ID, o.SessionID, o.TableNumber, o.Subtotal.String(), o.Tax.String(), o.Total.String(), string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}

	for _, it := range o.Items {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO order_items (order_id, menu_item_id, name, unit_price, quantity, modifications) VALUES (?, ?, ?, ?, ?, ?)",
			o.ID, it.MenuItemID, it.Name, it.UnitPrice.String(), it.Quantity, it.Modifications,
		)
		if err != nil {
			return fmt.Errorf("failed to save order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("order saved", "order_id", o.ID, "total", o.Total.StringFixed(2), "items", len(o.Items))
	return nil
}

// Active returns every order not yet completed, oldest first, with
// line items attached.
func (s *Store) Active(ctx context.Context) ([]Order, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, session_id, table_number, subtotal, tax, total, status, created_at FROM orders WHERE status != ? ORDER BY created_at",
		string(StatusCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var result []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		items, err := s.loadItems(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Items = items
	}
	return result, nil
}

// ActiveOrders adapts Active for the realtime hub's query surface
func (s *Store) ActiveOrders(ctx context.Context) (interface{}, error) {
	return s.Active(ctx)
}

// SetStatus moves an order to a new workflow status
func (s *Store) SetStatus(ctx context.Context, id string, status Status) error {
	if !validStatus(status) {
		return fmt.Errorf("invalid order status: %q", status)
	}

	res, err := s.db.ExecContext(ctx, "UPDATE orders SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	s.logger.Info("order status changed", "order_id", id, "status", status)
	return nil
}

func (s *Store) loadItems(ctx context.Context, orderID string) ([]session.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT menu_item_id, name, unit_price, quantity, modifications FROM order_items WHERE order_id = ? ORDER BY id",
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []session.Item
	for rows.Next() {
		var it session.Item
		var price string
		if err := rows.Scan(&it.MenuItemID, &it.Name, &price, &it.Quantity, &it.Modifications); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		it.UnitPrice, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("invalid unit price on order %s: %w", orderID, err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanOrder(rows *sql.Rows) (Order, error) {
	var o Order
	var subtotal, tax, total, status string
	if err := rows.Scan(&o.ID, &o.SessionID, &o.TableNumber, &subtotal, &tax, &total, &status, &o.CreatedAt); err != nil {
		return Order{}, fmt.Errorf("failed to scan order: %w", err)
	}

	var err error
	if o.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
		return Order{}, fmt.Errorf("invalid subtotal on order %s: %w", o.ID, err)
	}
	if o.Tax, err = decimal.NewFromString(tax); err != nil {
		return Order{}, fmt.Errorf("invalid tax on order %s: %w", o.ID, err)
	}
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return Order{}, fmt.Errorf("invalid total on order %s: %w", o.ID, err)
	}
	o.Status = Status(status)
	return o, nil
}
