// Package push carries item transitions from the persistence side to every
// viewer of a list.
//
// The wire format is one JSON object per message:
//
//	{"event":"item.transitioned","list_id":"L1","item_id":"42",
//	 "state":"picked","flags":{"picked":true},"display_key":"Apple"}
//
// A message may ship a ready-to-render "fragment"; without one the viewer
// fetches the item's fragment on demand. Delivery is assumed at-least-once
// and FIFO per item; duplicates are harmless because the engine is
// idempotent per item.
package push

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/pickboard/internal/ir"
)

// EventTransitioned is the only event tag the client understands.
const EventTransitioned = "item.transitioned"

// Message is the JSON envelope of a push notification.
type Message struct {
	Event          string       `json:"event"`
	ListID         string       `json:"list_id"`
	ItemID         string       `json:"item_id"`
	State          string       `json:"state,omitempty"`
	Flags          *ir.Flags    `json:"flags,omitempty"`
	DisplayKey     string       `json:"display_key,omitempty"`
	SubstituteName string       `json:"substitute_name,omitempty"`
	Fragment       *ir.Fragment `json:"fragment,omitempty"`
}

// DecodeError reports a push message that cannot be turned into a
// transition.
type DecodeError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode push message: %s: %v", e.Reason, e.Err)
	}
	return "decode push message: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError returns true if err wraps a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// Decode parses a raw push message into a transition event.
func Decode(raw []byte) (ir.TransitionEvent, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ir.TransitionEvent{}, &DecodeError{Reason: "malformed json", Raw: string(raw), Err: err}
	}
	ev, err := msg.Transition()
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			de.Raw = string(raw)
		}
		return ir.TransitionEvent{}, err
	}
	return ev, nil
}

// Transition validates the message and converts it.
func (m Message) Transition() (ir.TransitionEvent, error) {
	switch {
	case m.Event != EventTransitioned:
		return ir.TransitionEvent{}, &DecodeError{Reason: fmt.Sprintf("unknown event %q", m.Event)}
	case m.ItemID == "":
		return ir.TransitionEvent{}, &DecodeError{Reason: "missing item_id"}
	case m.ListID == "":
		return ir.TransitionEvent{}, &DecodeError{Reason: "missing list_id"}
	}

	ev := ir.TransitionEvent{
		ItemID:         m.ItemID,
		ListID:         m.ListID,
		DisplayKey:     m.DisplayKey,
		SubstituteName: m.SubstituteName,
	}

	if m.State != "" {
		tag, ok := ir.ParseStateTag(m.State)
		if !ok && m.Flags == nil && m.Fragment == nil {
			return ir.TransitionEvent{}, &DecodeError{Reason: fmt.Sprintf("unknown state %q", m.State)}
		}
		ev.State = tag
	}
	if m.Flags != nil {
		ev.Flags = *m.Flags
		ev.HasFlags = true
	}

	if m.Fragment != nil {
		f := *m.Fragment
		if f.ItemID == "" {
			f.ItemID = m.ItemID
		}
		if f.ListID == "" {
			f.ListID = m.ListID
		}
		if f.ItemID != m.ItemID {
			return ir.TransitionEvent{}, &DecodeError{
				Reason: fmt.Sprintf("fragment item %q does not match item_id %q", f.ItemID, m.ItemID),
			}
		}
		ev.Fragment = &f
	}

	if m.State == "" && m.Flags == nil && m.Fragment == nil {
		return ir.TransitionEvent{}, &DecodeError{Reason: "message carries neither state nor flags"}
	}
	return ev, nil
}

// MessageFor builds the wire message for a transition.
func MessageFor(ev ir.TransitionEvent) Message {
	msg := Message{
		Event:          EventTransitioned,
		ListID:         ev.ListID,
		ItemID:         ev.ItemID,
		State:          string(ev.State),
		DisplayKey:     ev.DisplayKey,
		SubstituteName: ev.SubstituteName,
		Fragment:       ev.Fragment,
	}
	if ev.HasFlags {
		flags := ev.Flags
		msg.Flags = &flags
	}
	return msg
}

// Encode marshals the wire message for a transition.
func Encode(ev ir.TransitionEvent) ([]byte, error) {
	raw, err := json.Marshal(MessageFor(ev))
	if err != nil {
		return nil, fmt.Errorf("encode push message for %s: %w", ev.ItemID, err)
	}
	return raw, nil
}
