// Package order defines the total order of items on a list: state
// priority first, then the normalized display key.
package order

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/pickboard/internal/classify"
	"github.com/roach88/pickboard/internal/ir"
)

// Priority returns the sort bucket of a state. Unknown sorts last.
func Priority(tag ir.StateTag) int {
	switch tag {
	case ir.StatePending:
		return 1
	case ir.StateInProcurement:
		return 2
	case ir.StateSubstituted:
		return 3
	case ir.StatePicked:
		return 4
	}
	return 5
}

// Key is the precomputed sort key of one item.
type Key struct {
	Priority int
	Name     string // normalized display key
}

// KeyOf builds the sort key for a state and raw display key.
func KeyOf(tag ir.StateTag, displayKey string) Key {
	return Key{Priority: Priority(tag), Name: NormalizeKey(displayKey)}
}

// ItemKey classifies the item and builds its key.
func ItemKey(it ir.Item) Key {
	return KeyOf(classify.Item(it), it.DisplayKey)
}

// NormalizeKey trims surrounding whitespace, composes to NFC and folds case
// so "  Apple" and "apple" compare equal.
func NormalizeKey(s string) string {
	s = strings.TrimSpace(s)
	s = norm.NFC.String(s)
	return cases.Fold().String(s)
}

// Compare orders a before b (-1), equal (0) or after (+1).
func Compare(a, b Key) int {
	switch {
	case a.Priority < b.Priority:
		return -1
	case a.Priority > b.Priority:
		return 1
	}
	return strings.Compare(a.Name, b.Name)
}

// Locate returns the index at which candidate should be inserted into
// list, which must not contain the candidate itself.
//
// The scan runs left to right and stops at the first occupant that sorts
// strictly after the candidate, so occupants with an equal key stay ahead
// of it and ties keep arrival order. No match appends.
func Locate(candidate Key, list []Key) int {
	for i, occupant := range list {
		if Compare(occupant, candidate) > 0 {
			return i
		}
	}
	return len(list)
}

// Sorted returns the keys' indices in board order. Equal keys keep their
// input order.
func Sorted(keys []Key) []int {
	out := make([]int, 0, len(keys))
	placed := make([]Key, 0, len(keys))
	for i, k := range keys {
		at := Locate(k, placed)
		placed = append(placed, Key{})
		copy(placed[at+1:], placed[at:])
		placed[at] = k
		out = append(out, 0)
		copy(out[at+1:], out[at:])
		out[at] = i
	}
	return out
}
