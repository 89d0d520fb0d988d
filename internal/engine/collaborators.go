package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/pickboard/internal/ir"
)

// FragmentSource fetches the current fragment of one item. Implementations
// must be idempotent and free of side effects; the engine may call Fetch
// for the same item more than once and discard stale answers.
type FragmentSource interface {
	Fetch(ctx context.Context, listID, itemID string) (ir.Fragment, error)
}

// FragmentSourceFunc adapts a function to FragmentSource.
type FragmentSourceFunc func(ctx context.Context, listID, itemID string) (ir.Fragment, error)

// Fetch calls f.
func (f FragmentSourceFunc) Fetch(ctx context.Context, listID, itemID string) (ir.Fragment, error) {
	return f(ctx, listID, itemID)
}

// Reloader performs the user-visible full reload, the last-resort fallback
// when the engine cannot trust its view any more.
type Reloader interface {
	Reload(reason error)
}

// ReloaderFunc adapts a function to Reloader.
type ReloaderFunc func(reason error)

// Reload calls f.
func (f ReloaderFunc) Reload(reason error) {
	f(reason)
}

type logReloader struct{}

func (logReloader) Reload(reason error) {
	slog.Error("full reload required, no reloader configured", "reason", reason)
}

type fetchResult struct {
	listID   string
	itemID   string
	gen      uint64
	fragment ir.Fragment
	err      error
}
