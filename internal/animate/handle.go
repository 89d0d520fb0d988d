package animate

// Handle lets callers wait for an animation while the loop keeps running.
//
// Done is closed exactly once, either when the fade-in completes or when
// a newer request for the same item cancels this one. Cancelled is only
// meaningful after Done is closed.
type Handle struct {
	done      chan struct{}
	cancelled bool
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func completedHandle() *Handle {
	h := newHandle()
	close(h.done)
	return h
}

// Done is closed when the animation finished or was cancelled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancelled reports whether a newer request superseded the animation.
func (h *Handle) Cancelled() bool {
	<-h.done
	return h.cancelled
}

// Finished reports, without blocking, whether Done is closed.
func (h *Handle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Handle) finish(cancelled bool) {
	select {
	case <-h.done:
		return
	default:
	}
	h.cancelled = cancelled
	close(h.done)
}
