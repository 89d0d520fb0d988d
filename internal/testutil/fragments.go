// Package testutil provides deterministic collaborators for tests: a
// virtual clock at a fixed epoch, an in-memory fragment source standing in
// for the on-demand endpoint, and a reloader that records fallbacks.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/pickboard/internal/ir"
)

// ErrFetchFailed is returned by MemorySource while failing is set.
var ErrFetchFailed = errors.New("fragment fetch failed")

// MemorySource is an in-memory fragment endpoint. It holds the "server
// truth" for each item; tests update it to mimic the persistence
// collaborator before sending the matching push event.
//
// Thread-safety: safe for concurrent use.
type MemorySource struct {
	mu      sync.Mutex
	items   map[string]ir.Fragment
	calls   []string
	failing bool
}

// NewMemorySource seeds the source with fragments.
func NewMemorySource(frags ...ir.Fragment) *MemorySource {
	s := &MemorySource{items: make(map[string]ir.Fragment)}
	for _, f := range frags {
		s.items[key(f.ListID, f.ItemID)] = f
	}
	return s
}

// Put stores the current fragment of an item.
func (s *MemorySource) Put(f ir.Fragment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key(f.ListID, f.ItemID)] = f
}

// Get returns the stored fragment of an item.
func (s *MemorySource) Get(listID, itemID string) (ir.Fragment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.items[key(listID, itemID)]
	return f, ok
}

// SetFailing makes every subsequent Fetch fail (or succeed again).
func (s *MemorySource) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

// Fetch implements engine.FragmentSource.
func (s *MemorySource) Fetch(_ context.Context, listID, itemID string) (ir.Fragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, key(listID, itemID))
	if s.failing {
		return ir.Fragment{}, ErrFetchFailed
	}
	f, ok := s.items[key(listID, itemID)]
	if !ok {
		return ir.Fragment{}, fmt.Errorf("item %s not found in list %s", itemID, listID)
	}
	return f, nil
}

// Calls returns the "list/item" keys fetched so far.
func (s *MemorySource) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

func key(listID, itemID string) string {
	return listID + "/" + itemID
}

// Fragment builds a fragment in a given state.
func Fragment(listID, itemID, displayKey string, tag ir.StateTag) ir.Fragment {
	return ir.Fragment{
		ItemID:     itemID,
		ListID:     listID,
		DisplayKey: displayKey,
		Flags:      ir.FlagsFor(tag),
		Body:       displayKey,
	}
}

// RecordingReloader records every reload request.
//
// Thread-safety: safe for concurrent use.
type RecordingReloader struct {
	mu      sync.Mutex
	reasons []error
}

// Reload implements engine.Reloader.
func (r *RecordingReloader) Reload(reason error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

// Reasons returns the recorded reload reasons.
func (r *RecordingReloader) Reasons() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]error, len(r.reasons))
	copy(out, r.reasons)
	return out
}
