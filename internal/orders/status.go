package orders

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// allowedTransitions is the per-state allow-list. A status may only move
// to one of its listed successors; everything else is rejected.
var allowedTransitions = map[string][]string{
	StatusPaid:       {StatusInCreation, StatusCancelled},
	StatusInCreation: {StatusReady, StatusCancelled, StatusPaid},
	StatusReady:      {StatusDelivering, StatusInCreation, StatusCancelled},
	StatusDelivering: {StatusDelivered, StatusReady},
	StatusDelivered:  {StatusDelivering},
	StatusCancelled:  {StatusPaid},
}

// statusLabels are the human-facing French labels, also used as the
// default timeline note when the caller provides none.
var statusLabels = map[string]string{
	StatusPaid:       "Commande payée",
	StatusInCreation: "En cours de création",
	StatusReady:      "Prête",
	StatusDelivering: "En cours de livraison",
	StatusDelivered:  "Livrée",
	StatusCancelled:  "Annulée",
}

// ErrUnknownStatus rejects status tokens outside the state machine.
var ErrUnknownStatus = errors.New("orders: unknown status")

// InvalidTransitionError reports a transition outside the allow-list,
// carrying enough detail for the client to self-correct.
type InvalidTransitionError struct {
	Current   string
	Attempted string
	Allowed   []string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("orders: cannot move from %s to %s (allowed: %s)",
		e.Current, e.Attempted, strings.Join(e.Allowed, ", "))
}

// IsValidStatus reports whether s is a known status token.
func IsValidStatus(s string) bool {
	_, ok := allowedTransitions[s]
	return ok
}

// StatusLabel returns the display label for a status token.
func StatusLabel(s string) string {
	return statusLabels[s]
}

// AllowedNext returns the legal successors of a status.
func AllowedNext(current string) []string {
	next := allowedTransitions[current]
	out := make([]string, len(next))
	copy(out, next)
	return out
}

// ValidateTransition checks current -> next against the allow-list.
// A self-transition is always permitted; it is a note-only no-op.
func ValidateTransition(current, next string) error {
	if !IsValidStatus(next) {
		return fmt.Errorf("%q: %w", next, ErrUnknownStatus)
	}
	if !IsValidStatus(current) {
		return fmt.Errorf("%q: %w", current, ErrUnknownStatus)
	}
	if next == current {
		return nil
	}
	for _, s := range allowedTransitions[current] {
		if s == next {
			return nil
		}
	}
	return &InvalidTransitionError{
		Current:   current,
		Attempted: next,
		Allowed:   AllowedNext(current),
	}
}

// ApplyTransition validates and applies a transition to the in-memory
// order: sets the status, appends the timeline entry and stamps the
// lifecycle timestamp on first entry. The caller persists the result with
// a conditional write against the status it read.
func ApplyTransition(o *Order, newStatus, note string, now time.Time) (TimelineEntry, error) {
	if err := ValidateTransition(o.Status, newStatus); err != nil {
		return TimelineEntry{}, err
	}
	if note == "" {
		note = StatusLabel(newStatus)
	}
	entry := TimelineEntry{Status: newStatus, Date: now, Note: note}

	// a self transition is note-only; it must not stamp a lifecycle
	// timestamp the store never persists for it
	changed := o.Status != newStatus
	o.Status = newStatus
	o.Timeline = append(o.Timeline, entry)
	o.UpdatedAt = now
	if changed {
		stampLifecycle(o, newStatus, now)
	}
	return entry, nil
}

// stampLifecycle sets the timestamp matching the entered status, only if
// it has never been set. Re-entering via a back-transition keeps the
// original value; the timeline records the re-entry.
func stampLifecycle(o *Order, status string, now time.Time) {
	switch status {
	case StatusPaid:
		if o.ConfirmedAt == nil {
			o.ConfirmedAt = &now
		}
	case StatusReady:
		if o.ReadyAt == nil {
			o.ReadyAt = &now
		}
	case StatusDelivered:
		if o.DeliveredAt == nil {
			o.DeliveredAt = &now
		}
	case StatusCancelled:
		if o.CancelledAt == nil {
			o.CancelledAt = &now
		}
	}
}

// lifecycleAttribute maps a status to the persisted timestamp attribute,
// or "" when the status has none.
func lifecycleAttribute(status string) string {
	switch status {
	case StatusPaid:
		return "confirmed_at"
	case StatusReady:
		return "ready_at"
	case StatusDelivered:
		return "delivered_at"
	case StatusCancelled:
		return "cancelled_at"
	}
	return ""
}
