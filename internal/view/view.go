// Package view models the rendered board: named containers holding
// ordered visual nodes, one per item in the healthy case.
//
// The Document is not safe for concurrent use. The reconciliation engine
// owns it and touches it only from its event loop goroutine.
package view

import (
	"fmt"
	"strings"

	"github.com/roach88/pickboard/internal/classify"
	"github.com/roach88/pickboard/internal/ir"
)

// Markers are the transient transition classes on a node.
type Markers struct {
	Leaving  bool
	Arriving bool
}

// Zero reports whether no marker is set.
func (m Markers) Zero() bool {
	return !m.Leaving && !m.Arriving
}

// Node is one visual occurrence of an item.
type Node struct {
	ItemID   string
	Fragment ir.Fragment
	Markers  Markers

	container *Container
}

// NewNode creates a detached node for a fragment.
func NewNode(f ir.Fragment) *Node {
	return &Node{ItemID: f.ItemID, Fragment: f}
}

// Container returns the container holding the node, nil when detached.
func (n *Node) Container() *Container {
	return n.container
}

// Container is one list on the board.
type Container struct {
	ID    string
	nodes []*Node
}

// Len returns the number of nodes.
func (c *Container) Len() int {
	return len(c.nodes)
}

// Nodes returns a copy of the nodes in visual order.
func (c *Container) Nodes() []*Node {
	out := make([]*Node, len(c.nodes))
	copy(out, c.nodes)
	return out
}

// At returns the node at index i.
func (c *Container) At(i int) *Node {
	return c.nodes[i]
}

// IndexOf returns the position of n, or -1.
func (c *Container) IndexOf(n *Node) int {
	for i, m := range c.nodes {
		if m == n {
			return i
		}
	}
	return -1
}

// InsertAt places a detached node at index i, clamped to [0, Len()].
func (c *Container) InsertAt(i int, n *Node) {
	if n.container != nil {
		panic(fmt.Sprintf("view: node %q is already attached to %q", n.ItemID, n.container.ID))
	}
	i = clamp(i, 0, len(c.nodes))
	c.nodes = append(c.nodes, nil)
	copy(c.nodes[i+1:], c.nodes[i:])
	c.nodes[i] = n
	n.container = c
}

// Remove detaches n. It returns false when n is not in c.
func (c *Container) Remove(n *Node) bool {
	i := c.IndexOf(n)
	if i < 0 {
		return false
	}
	copy(c.nodes[i:], c.nodes[i+1:])
	c.nodes[len(c.nodes)-1] = nil
	c.nodes = c.nodes[:len(c.nodes)-1]
	n.container = nil
	return true
}

// Move relocates n to index to, where to is expressed against the list
// without n. It returns the index n occupied before the move.
func (c *Container) Move(n *Node, to int) (from int, err error) {
	from = c.IndexOf(n)
	if from < 0 {
		return -1, fmt.Errorf("move %q: node not in container %q", n.ItemID, c.ID)
	}
	c.Remove(n)
	c.InsertAt(to, n)
	return from, nil
}

// Occurrence locates one node during a full scan.
type Occurrence struct {
	Container string
	Index     int
	Node      *Node
}

// Document is the whole board.
type Document struct {
	containers map[string]*Container
	order      []string

	lastFrame string
	paints    int
	changes   int
}

// NewDocument creates an empty board.
func NewDocument() *Document {
	return &Document{containers: make(map[string]*Container)}
}

// Ensure returns the container id, creating it on first use.
func (d *Document) Ensure(id string) *Container {
	if c, ok := d.containers[id]; ok {
		return c
	}
	c := &Container{ID: id}
	d.containers[id] = c
	d.order = append(d.order, id)
	return c
}

// Lookup returns the container id if it exists.
func (d *Document) Lookup(id string) (*Container, bool) {
	c, ok := d.containers[id]
	return c, ok
}

// Containers returns the containers in creation order.
func (d *Document) Containers() []*Container {
	out := make([]*Container, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.containers[id])
	}
	return out
}

// Occurrences scans every container for nodes carrying itemID.
func (d *Document) Occurrences(itemID string) []Occurrence {
	var out []Occurrence
	for _, id := range d.order {
		for i, n := range d.containers[id].nodes {
			if n.ItemID == itemID {
				out = append(out, Occurrence{Container: id, Index: i, Node: n})
			}
		}
	}
	return out
}

// Reset drops every container and the paint history.
func (d *Document) Reset() {
	for _, c := range d.containers {
		for _, n := range c.nodes {
			n.container = nil
		}
	}
	d.containers = make(map[string]*Container)
	d.order = nil
	d.lastFrame = ""
}

// Paint commits the current frame. It returns true when the frame differs
// from the previously painted one, which is what a viewer would notice.
func (d *Document) Paint() bool {
	d.paints++
	frame := d.Render()
	if frame == d.lastFrame {
		return false
	}
	d.lastFrame = frame
	d.changes++
	return true
}

// VisibleChanges counts paints that changed the frame.
func (d *Document) VisibleChanges() int {
	return d.changes
}

// Render returns a deterministic text frame of the board.
func (d *Document) Render() string {
	var b strings.Builder
	for _, id := range d.order {
		c := d.containers[id]
		fmt.Fprintf(&b, "%s:\n", id)
		for _, n := range c.nodes {
			b.WriteString("  ")
			b.WriteString(renderNode(n))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// ItemIDs returns the item ids of a container in visual order.
func (d *Document) ItemIDs(containerID string) []string {
	c, ok := d.containers[containerID]
	if !ok {
		return nil
	}
	out := make([]string, len(c.nodes))
	for i, n := range c.nodes {
		out[i] = n.ItemID
	}
	return out
}

// DisplayKeys returns the display keys of a container in visual order.
func (d *Document) DisplayKeys(containerID string) []string {
	c, ok := d.containers[containerID]
	if !ok {
		return nil
	}
	out := make([]string, len(c.nodes))
	for i, n := range c.nodes {
		out[i] = n.Fragment.DisplayKey
	}
	return out
}

func renderNode(n *Node) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %q [%s]", n.ItemID, n.Fragment.DisplayKey, classify.Classify(n.Fragment.Flags))
	if n.Fragment.SubstituteName != "" {
		fmt.Fprintf(&b, " -> %q", n.Fragment.SubstituteName)
	}
	if n.Markers.Leaving {
		b.WriteString(" (leaving)")
	}
	if n.Markers.Arriving {
		b.WriteString(" (arriving)")
	}
	return b.String()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
