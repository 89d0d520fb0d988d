// Package classify maps an item's attribute snapshot to exactly one state tag.
package classify

import (
	"log/slog"

	"github.com/roach88/pickboard/internal/ir"
)

// Classify returns the state tag for a flag snapshot.
//
// Overlapping flags resolve by fixed precedence: Pending, InProcurement,
// Substituted, Picked. A snapshot with no flag set is StateUnknown and is
// logged as a data-integrity concern; it is never fatal.
func Classify(f ir.Flags) ir.StateTag {
	switch {
	case f.Pending:
		return ir.StatePending
	case f.InProcurement:
		return ir.StateInProcurement
	case f.Substituted:
		return ir.StateSubstituted
	case f.Picked:
		return ir.StatePicked
	}
	return ir.StateUnknown
}

// Item classifies an item and logs unknown states with the item's identity.
func Item(it ir.Item) ir.StateTag {
	tag := Classify(it.Flags)
	if tag == ir.StateUnknown {
		slog.Warn("item has no recognizable state",
			"item_id", it.ID,
			"list_id", it.ListID,
			"event", "data_integrity",
		)
	}
	return tag
}
