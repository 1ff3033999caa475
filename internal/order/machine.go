package order

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"VoiceOrder/internal/menu"
	"VoiceOrder/internal/session"
)

var (
	// ErrEmptyOrder means a money-moving operation was attempted on a
	// session with no items.
	ErrEmptyOrder = errors.New("order has no items")

	// ErrInvalidTotal means a computed total came out non-positive.
	ErrInvalidTotal = errors.New("order total must be positive")
)

// Command is a mutation applied to an order session
type Command interface {
	isCommand()
}

// AddItem adds a menu item resolved by fuzzy name match
type AddItem struct {
	Name          string
	Quantity      int
	Modifications string
}

// RemoveItem removes every item whose name contains the given
// substring
type RemoveItem struct {
	Name string
}

// Clear empties the order
type Clear struct{}

func (AddItem) isCommand()    {}
func (RemoveItem) isCommand() {}
func (Clear) isCommand()      {}

// Machine applies commands to order sessions. A misheard or unmatched
// item name is a silent no-op, reported through the matched return
// rather than an error, so a bad utterance never breaks the session.
type Machine struct {
	logger *slog.Logger

	// Now is the clock used for activity timestamps. Tests override it.
	Now func() time.Time
}

// NewMachine creates an order state machine
func NewMachine(logger *slog.Logger) *Machine {
	return &Machine{logger: logger, Now: time.Now}
}

// Apply runs cmd against sess using items as the current catalog.
// It serializes with other mutations via the session lock and updates
// the activity timestamp. The return reports whether the command
// changed anything; an unmatched AddItem or RemoveItem returns false.
func (m *Machine) Apply(sess *session.Session, cmd Command, items []menu.Item) bool {
	sess.Lock()
	defer sess.Unlock()

	matched := false
	switch c := cmd.(type) {
	case AddItem:
		matched = m.applyAdd(sess, c, items)
	case RemoveItem:
		matched = m.applyRemove(sess, c)
	case Clear:
		sess.Items = sess.Items[:0]
		matched = true
	}

	sess.Touch(m.Now())
	return matched
}

func (m *Machine) applyAdd(sess *session.Session, cmd AddItem, items []menu.Item) bool {
	it, ok := menu.Match(items, cmd.Name)
	if !ok {
		m.logger.Info("no menu match for item", "session_id", sess.ID, "spoken", cmd.Name)
		return false
	}

	qty := cmd.Quantity
	if qty < 1 {
		qty = 1
	}

	sess.Items = append(sess.Items, session.Item{
		MenuItemID:    it.ID,
		Name:          it.Name,
		UnitPrice:     it.Price, // price snapshot; menu changes never reprice this line
		Quantity:      qty,
		Modifications: cmd.Modifications,
	})
	m.logger.Info("added item", "session_id", sess.ID, "item", it.Name, "quantity", qty)
	return true
}

func (m *Machine) applyRemove(sess *session.Session, cmd RemoveItem) bool {
	target := strings.ToLower(strings.TrimSpace(cmd.Name))
	if target == "" {
		return false
	}

	kept := sess.Items[:0]
	removed := 0
	for _, it := range sess.Items {
		if strings.Contains(strings.ToLower(it.Name), target) {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	sess.Items = kept

	if removed > 0 {
		m.logger.Info("removed items", "session_id", sess.ID, "match", cmd.Name, "count", removed)
	}
	return removed > 0
}
