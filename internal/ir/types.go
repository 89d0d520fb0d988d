package ir

import "fmt"

// StateTag is the discrete state of an item on the board.
type StateTag string

const (
	StatePending       StateTag = "pending"
	StateInProcurement StateTag = "in_procurement"
	StateSubstituted   StateTag = "substituted"
	StatePicked        StateTag = "picked"
	StateUnknown       StateTag = "unknown"
)

// ValidStates lists the known tags in precedence order.
var ValidStates = []StateTag{
	StatePending,
	StateInProcurement,
	StateSubstituted,
	StatePicked,
}

// ParseStateTag returns the tag for s. Unrecognized values map to
// StateUnknown with ok=false.
func ParseStateTag(s string) (tag StateTag, ok bool) {
	switch StateTag(s) {
	case StatePending, StateInProcurement, StateSubstituted, StatePicked:
		return StateTag(s), true
	case StateUnknown:
		return StateUnknown, true
	}
	return StateUnknown, false
}

// Flags is an attribute snapshot of an item. More than one flag may be
// set when upstream data is inconsistent; the classifier resolves overlap.
type Flags struct {
	Pending       bool `json:"pending" yaml:"pending"`
	InProcurement bool `json:"sent_for_procurement" yaml:"sent_for_procurement"`
	Substituted   bool `json:"substituted" yaml:"substituted"`
	Picked        bool `json:"picked" yaml:"picked"`
}

// FlagsFor returns the canonical snapshot for a state tag.
// StateUnknown yields the empty snapshot.
func FlagsFor(tag StateTag) Flags {
	switch tag {
	case StatePending:
		return Flags{Pending: true}
	case StateInProcurement:
		return Flags{InProcurement: true}
	case StateSubstituted:
		return Flags{Substituted: true}
	case StatePicked:
		return Flags{Picked: true}
	}
	return Flags{}
}

// Item is one unit of work on a list.
type Item struct {
	ID             string `json:"id"`
	ListID         string `json:"list_id"`
	DisplayKey     string `json:"display_key"`
	Flags          Flags  `json:"flags"`
	SubstituteName string `json:"substitute_name,omitempty"`
}

// Fragment is the minimal renderable representation of one item.
// Body is opaque to the engine; it is produced by the rendering collaborator.
type Fragment struct {
	ItemID         string `json:"item_id"`
	ListID         string `json:"list_id"`
	DisplayKey     string `json:"display_key"`
	Flags          Flags  `json:"flags"`
	SubstituteName string `json:"substitute_name,omitempty"`
	Body           string `json:"body,omitempty"`
}

// Item returns the item described by the fragment.
func (f Fragment) Item() Item {
	return Item{
		ID:             f.ItemID,
		ListID:         f.ListID,
		DisplayKey:     f.DisplayKey,
		Flags:          f.Flags,
		SubstituteName: f.SubstituteName,
	}
}

// FragmentOf builds a fragment for an item with the given body.
func FragmentOf(it Item, body string) Fragment {
	return Fragment{
		ItemID:         it.ID,
		ListID:         it.ListID,
		DisplayKey:     it.DisplayKey,
		Flags:          it.Flags,
		SubstituteName: it.SubstituteName,
		Body:           body,
	}
}

// Origin tags where a transition entered the engine.
type Origin int

const (
	// OriginLocal is the synchronous echo of this viewer's own action.
	OriginLocal Origin = iota + 1
	// OriginRemote arrived over the push channel.
	OriginRemote
)

func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginRemote:
		return "remote"
	}
	return fmt.Sprintf("origin(%d)", int(o))
}

// TransitionEvent describes a change in an item's state. It is ephemeral
// and is not retained after the engine applies it.
type TransitionEvent struct {
	ItemID string
	ListID string

	// State is the resulting state as reported by the producer. The engine
	// classifies from Flags; State only fills Flags in when HasFlags is false.
	State    StateTag
	Flags    Flags
	HasFlags bool

	DisplayKey     string
	SubstituteName string

	// Fragment is set when the producer shipped a ready-to-render fragment.
	Fragment *Fragment

	// Seq is stamped by the engine's logical clock on ingress.
	Seq int64
}

// EffectiveFlags returns the flags to classify with.
func (e TransitionEvent) EffectiveFlags() Flags {
	if e.Fragment != nil {
		return e.Fragment.Flags
	}
	if e.HasFlags {
		return e.Flags
	}
	return FlagsFor(e.State)
}

// TransitionResult is the persistence collaborator's synchronous answer
// to a local action: either a fresh fragment or the updated flags.
type TransitionResult struct {
	ItemID   string    `json:"item_id"`
	ListID   string    `json:"list_id"`
	Fragment *Fragment `json:"fragment,omitempty"`
	Flags    *Flags    `json:"flags,omitempty"`
}

// Event converts the result into a local transition event.
func (r TransitionResult) Event() TransitionEvent {
	ev := TransitionEvent{
		ItemID:   r.ItemID,
		ListID:   r.ListID,
		Fragment: r.Fragment,
	}
	if r.Flags != nil {
		ev.Flags = *r.Flags
		ev.HasFlags = true
	}
	if r.Fragment != nil {
		ev.DisplayKey = r.Fragment.DisplayKey
		ev.SubstituteName = r.Fragment.SubstituteName
	}
	return ev
}
