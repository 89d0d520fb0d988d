package engine

import (
	"fmt"
	"log/slog"

	"github.com/roach88/pickboard/internal/classify"
	"github.com/roach88/pickboard/internal/ir"
	"github.com/roach88/pickboard/internal/order"
	"github.com/roach88/pickboard/internal/view"
)

// applyLocal handles the echo of this viewer's own action:
//  1. register the suppression record (its expiry is scheduled at mark time)
//  2-3. remove every occurrence, classify, locate and insert
//  4. trigger the animator
func (e *Engine) applyLocal(tr *ir.TransitionEvent) error {
	if tr.ItemID == "" {
		e.trace(TraceInvalidDrop, "", ir.OriginLocal, "missing item id")
		return fmt.Errorf("local transition missing item id")
	}
	if tr.Fragment == nil && len(e.index[tr.ItemID]) == 0 {
		e.trace(TraceInvalidDrop, tr.ItemID, ir.OriginLocal, "item not on the board")
		return fmt.Errorf("local transition for %q: item not on the board", tr.ItemID)
	}

	e.suppressor.MarkInProgress(tr.ItemID)
	e.bump(tr.ItemID)

	frag, err := e.mergeFragment(tr)
	if err != nil {
		return err
	}
	e.place(frag, ir.OriginLocal)
	return nil
}

// applyRemote handles a transition from the push channel. A live
// suppression record means the event is the echo of a local action that
// is already on screen: it is dropped and the record consumed.
func (e *Engine) applyRemote(tr *ir.TransitionEvent) error {
	if tr.ItemID == "" {
		e.trace(TraceInvalidDrop, "", ir.OriginRemote, "missing item id")
		return fmt.Errorf("remote transition missing item id")
	}

	if e.suppressor.IsInProgress(tr.ItemID) {
		e.suppressor.Consume(tr.ItemID)
		e.stats.Suppressed++
		e.trace(TraceSuppressed, tr.ItemID, ir.OriginRemote, "")
		slog.Debug("remote echo of local action suppressed",
			"item_id", tr.ItemID,
			"seq", tr.Seq,
			"session", e.sessionID,
		)
		return nil
	}

	gen := e.bump(tr.ItemID)

	if tr.Fragment != nil {
		frag, err := e.mergeFragment(tr)
		if err != nil {
			return err
		}
		e.place(frag, ir.OriginRemote)
		return nil
	}

	listID := tr.ListID
	if listID == "" {
		if nodes := e.index[tr.ItemID]; len(nodes) > 0 {
			listID = nodes[0].Container().ID
		}
	}
	if listID == "" {
		e.reload(&ReloadError{Reason: "remote transition names no list", ItemID: tr.ItemID})
		return nil
	}
	if e.source == nil {
		e.reload(&ReloadError{Reason: "no fragment source configured", ItemID: tr.ItemID})
		return nil
	}

	e.startFetch(listID, tr.ItemID, gen)
	return nil
}

// applyConfirmed compares the collaborator's answer with what the local
// apply already rendered. The suppression record still belongs to the
// push echo and is not touched here.
func (e *Engine) applyConfirmed(tr *ir.TransitionEvent) error {
	if tr.ItemID == "" {
		e.trace(TraceInvalidDrop, "", ir.OriginLocal, "missing item id")
		return fmt.Errorf("confirmed transition missing item id")
	}

	frag, err := e.mergeFragment(tr)
	if err != nil {
		return err
	}

	if nodes := e.index[tr.ItemID]; len(nodes) == 1 && agrees(nodes[0], frag) {
		// keep the server's rendering; position and state are unchanged
		nodes[0].Fragment = frag
		e.trace(TraceConfirmed, tr.ItemID, ir.OriginLocal, "state="+string(classify.Classify(frag.Flags)))
		return nil
	}

	e.bump(tr.ItemID)
	slog.Warn("collaborator result differs from optimistic state",
		"item_id", tr.ItemID,
		"state", classify.Classify(frag.Flags),
		"session", e.sessionID,
	)
	e.place(frag, ir.OriginLocal)
	return nil
}

// agrees reports whether n already renders f's list, state and sort key.
func agrees(n *view.Node, f ir.Fragment) bool {
	c := n.Container()
	if c == nil || c.ID != f.ListID {
		return false
	}
	tag := classify.Classify(f.Flags)
	if classify.Classify(n.Fragment.Flags) != tag {
		return false
	}
	if tag == ir.StateSubstituted && n.Fragment.SubstituteName != f.SubstituteName {
		return false
	}
	return order.NormalizeKey(n.Fragment.DisplayKey) == order.NormalizeKey(f.DisplayKey)
}

func (e *Engine) refresh(listID, itemID string) {
	e.suppressor.Consume(itemID)
	gen := e.bump(itemID)

	if listID == "" {
		listID = e.currentList(itemID)
	}
	if listID == "" || e.source == nil {
		e.reload(&ReloadError{Reason: "cannot refresh item", ItemID: itemID})
		return
	}
	e.startFetch(listID, itemID, gen)
}

func (e *Engine) startFetch(listID, itemID string, gen uint64) {
	e.stats.Fetches++
	e.trace(TraceFetch, itemID, ir.OriginRemote, listID)

	e.fetching.Add(1)
	run := func() {
		defer e.fetching.Add(-1)
		frag, err := e.source.Fetch(e.fetchCtx, listID, itemID)
		e.queue.Enqueue(Event{
			Type: EventTypeFetched,
			Fetched: &fetchResult{
				listID:   listID,
				itemID:   itemID,
				gen:      gen,
				fragment: frag,
				err:      err,
			},
			Seq: e.seq.Next(),
		})
	}

	if e.syncFetch {
		run()
		return
	}
	go run()
}

// onFetched is the continuation of startFetch.
func (e *Engine) onFetched(res *fetchResult) error {
	if cur := e.generations[res.itemID]; cur != res.gen {
		e.stats.StaleFetches++
		e.trace(TraceStaleFetch, res.itemID, ir.OriginRemote, fmt.Sprintf("gen=%d current=%d", res.gen, cur))
		slog.Debug("discarding stale fragment",
			"item_id", res.itemID,
			"gen", res.gen,
			"current", cur,
		)
		return nil
	}

	if res.err != nil {
		e.reload(&ReloadError{Reason: "fragment fetch failed", ItemID: res.itemID, Err: res.err})
		return nil
	}

	frag := res.fragment
	if frag.ItemID == "" {
		frag.ItemID = res.itemID
	}
	if frag.ItemID != res.itemID {
		e.reload(&ReloadError{
			Reason: "fetched fragment belongs to another item",
			ItemID: res.itemID,
			Err:    fmt.Errorf("got %q", frag.ItemID),
		})
		return nil
	}
	if frag.ListID == "" {
		frag.ListID = res.listID
	}

	e.place(frag, ir.OriginRemote)
	return nil
}

// mergeFragment builds the fragment to render for a transition. A shipped
// fragment is used as is; otherwise the current node's fragment is updated
// with the event's flags so local actions render optimistically.
func (e *Engine) mergeFragment(tr *ir.TransitionEvent) (ir.Fragment, error) {
	if tr.Fragment != nil {
		f := *tr.Fragment
		if f.ItemID == "" {
			f.ItemID = tr.ItemID
		}
		if f.ItemID != tr.ItemID {
			return ir.Fragment{}, fmt.Errorf("fragment item %q does not match transition item %q", f.ItemID, tr.ItemID)
		}
		if f.ListID == "" {
			f.ListID = tr.ListID
		}
		if f.ListID == "" {
			f.ListID = e.currentList(tr.ItemID)
		}
		return f, nil
	}

	f := ir.Fragment{ItemID: tr.ItemID, ListID: tr.ListID}
	if nodes := e.index[tr.ItemID]; len(nodes) > 0 {
		f = nodes[0].Fragment
		if tr.ListID != "" {
			f.ListID = tr.ListID
		}
	}
	if f.ListID == "" {
		return ir.Fragment{}, fmt.Errorf("transition for %q names no list and the item is not on the board", tr.ItemID)
	}

	f.Flags = tr.EffectiveFlags()
	if tr.DisplayKey != "" {
		f.DisplayKey = tr.DisplayKey
	}
	switch {
	case tr.SubstituteName != "":
		f.SubstituteName = tr.SubstituteName
	case classify.Classify(f.Flags) != ir.StateSubstituted:
		f.SubstituteName = ""
	}
	return f, nil
}

func (e *Engine) currentList(itemID string) string {
	if nodes := e.index[itemID]; len(nodes) > 0 {
		return nodes[0].Container().ID
	}
	return ""
}

// place is steps 2-4 shared by both origins: remove every occurrence,
// insert the single node, verify uniqueness and hand the move to the
// animator.
//
// An item already in the same list is put back at its current visual
// position first, so the animator moves it from where the viewer last saw
// it. Remove and reinsert happen in one loop turn and are never painted.
func (e *Engine) place(frag ir.Fragment, origin ir.Origin) {
	id := frag.ItemID

	prevList, prevIndex := "", -1
	if nodes := e.index[id]; len(nodes) > 0 {
		c := nodes[0].Container()
		prevList, prevIndex = c.ID, c.IndexOf(nodes[0])
	}

	removed := e.removeAll(id, false)
	node := view.NewNode(frag)
	if len(removed) > 0 {
		node = removed[0]
		node.Fragment = frag
	}

	c := e.doc.Ensure(frag.ListID)
	tag := classify.Item(frag.Item())

	var from, to int
	if prevList == c.ID {
		from = min(prevIndex, c.Len())
		c.InsertAt(from, node)
		e.index[id] = []*view.Node{node}
		to = e.target(c, node)
	} else {
		from = -1
		to = e.locateFresh(c, frag)
		c.InsertAt(to, node)
		e.index[id] = []*view.Node{node}
	}

	if err := e.AssertUniqueness(id); err != nil {
		e.repair(id, node)
	}

	e.stats.Applied++
	e.trace(TraceApplied, id, origin, fmt.Sprintf("state=%s list=%s from=%d to=%d", tag, c.ID, from, to))

	h := e.animator.AnimateMove(id, from, to)
	if h.Finished() {
		e.refreshCounts()
		return
	}
	e.trace(TraceAnimation, id, origin, fmt.Sprintf("from=%d to=%d", from, to))
}

// RemoveAllOccurrences removes every node carrying itemID and returns how
// many were removed. Zero is a no-op logged at warning level; more than one
// means something upstream rendered the item twice. Loop goroutine only.
func (e *Engine) RemoveAllOccurrences(itemID string) int {
	return len(e.removeAll(itemID, true))
}

// removeAll detaches every indexed node of itemID plus any strays a full
// scan finds, and returns them in index order.
func (e *Engine) removeAll(itemID string, warnAbsent bool) []*view.Node {
	nodes := e.index[itemID]
	delete(e.index, itemID)

	removed := make([]*view.Node, 0, len(nodes))
	for _, n := range nodes {
		if c := n.Container(); c != nil && c.Remove(n) {
			removed = append(removed, n)
		}
	}

	// Strays are nodes the index never learned about.
	for _, occ := range e.doc.Occurrences(itemID) {
		if c, ok := e.doc.Lookup(occ.Container); ok && c.Remove(occ.Node) {
			removed = append(removed, occ.Node)
		}
	}

	switch {
	case len(removed) == 0 && warnAbsent:
		slog.Warn("remove of absent item is a no-op", "item_id", itemID, "session", e.sessionID)
	case len(removed) > 1:
		e.stats.DuplicatesRemoved += len(removed) - 1
		e.trace(TraceDuplicates, itemID, 0, fmt.Sprintf("count=%d", len(removed)))
		slog.Warn("item had multiple visual occurrences",
			"item_id", itemID,
			"count", len(removed),
			"session", e.sessionID,
		)
	}
	return removed
}

// AssertUniqueness counts the live occurrences of itemID with a full scan.
// Anything but exactly one is a recoverable integrity violation: it is
// logged, traced and returned, naming every container that holds an
// occurrence. Loop goroutine only.
func (e *Engine) AssertUniqueness(itemID string) error {
	occ := e.doc.Occurrences(itemID)
	indexed := len(e.index[itemID])

	if len(occ) == 1 && indexed == 1 && occ[0].Node == e.index[itemID][0] {
		return nil
	}

	containers := make([]string, len(occ))
	for i, o := range occ {
		containers[i] = o.Container
	}

	err := &IntegrityError{ItemID: itemID, Count: len(occ), Containers: containers}
	switch {
	case len(occ) > 1:
		err.Code = ErrCodeDuplicateOccurrence
	case len(occ) == 0:
		err.Code = ErrCodeMissingOccurrence
	default:
		err.Code = ErrCodeIndexDrift
	}

	e.stats.IntegrityViolations++
	e.trace(TraceIntegrity, itemID, 0, err.Error())
	slog.Warn("view integrity violation",
		"error", err,
		"item_id", itemID,
		"indexed", indexed,
		"session", e.sessionID,
	)
	return err
}

// repair makes keep the only occurrence of itemID.
func (e *Engine) repair(itemID string, keep *view.Node) {
	for _, occ := range e.doc.Occurrences(itemID) {
		if occ.Node == keep {
			continue
		}
		if c, ok := e.doc.Lookup(occ.Container); ok {
			c.Remove(occ.Node)
		}
	}
	if keep.Container() != nil {
		e.index[itemID] = []*view.Node{keep}
	} else {
		delete(e.index, itemID)
	}
}

// target returns the ordered position of node in its container, expressed
// against the list without node. A node whose current position already
// satisfies the order keeps it, so equal keys do not shuffle.
func (e *Engine) target(c *view.Container, node *view.Node) int {
	key := nodeKey(node)
	at := c.IndexOf(node)

	if at >= 0 {
		okBefore := at == 0 || order.Compare(nodeKey(c.At(at-1)), key) <= 0
		okAfter := at == c.Len()-1 || order.Compare(key, nodeKey(c.At(at+1))) <= 0
		if okBefore && okAfter {
			return at
		}
	}

	rest := make([]order.Key, 0, c.Len())
	for _, n := range c.Nodes() {
		if n != node {
			rest = append(rest, nodeKey(n))
		}
	}
	return order.Locate(key, rest)
}

// locateFresh returns the insert position for a fragment not yet in c.
func (e *Engine) locateFresh(c *view.Container, f ir.Fragment) int {
	keys := make([]order.Key, 0, c.Len())
	for _, n := range c.Nodes() {
		keys = append(keys, nodeKey(n))
	}
	return order.Locate(order.KeyOf(classify.Classify(f.Flags), f.DisplayKey), keys)
}

func nodeKey(n *view.Node) order.Key {
	return order.KeyOf(classify.Classify(n.Fragment.Flags), n.Fragment.DisplayKey)
}

func (e *Engine) bump(itemID string) uint64 {
	e.generations[itemID]++
	return e.generations[itemID]
}

func (e *Engine) reload(err *ReloadError) {
	e.stats.Reloads++
	e.trace(TraceReload, err.ItemID, 0, err.Reason)
	slog.Error("falling back to full reload",
		"reason", err.Reason,
		"item_id", err.ItemID,
		"error", err.Err,
		"session", e.sessionID,
	)
	e.reloader.Reload(err)
}

// viewTarget adapts the engine's document to the animator.
type viewTarget struct {
	e *Engine
}

func (t viewTarget) SetMarkers(itemID string, m view.Markers) {
	for _, n := range t.e.index[itemID] {
		n.Markers = m
	}
}

// Relocate recomputes the destination against the list as it is now,
// which may differ from when the animation started.
func (t viewTarget) Relocate(itemID string) (int, int, bool) {
	nodes := t.e.index[itemID]
	if len(nodes) == 0 {
		return 0, 0, false
	}
	node := nodes[0]
	c := node.Container()
	if c == nil {
		return 0, 0, false
	}

	to := t.e.target(c, node)
	from, err := c.Move(node, to)
	if err != nil {
		slog.Warn("relocate failed", "item_id", itemID, "error", err)
		return 0, 0, false
	}
	return from, to, true
}
