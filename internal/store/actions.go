package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/pickboard/internal/classify"
	"github.com/roach88/pickboard/internal/ir"
)

// Action is a picker's command against one item.
type Action string

const (
	ActionPick       Action = "pick"
	ActionProcure    Action = "procure"
	ActionSubstitute Action = "substitute"
	ActionReset      Action = "reset"
)

// ErrInvalidAction is returned for unknown actions or missing arguments.
var ErrInvalidAction = errors.New("invalid action")

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionPick, ActionProcure, ActionSubstitute, ActionReset:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// Target returns the state the action moves an item to.
func (a Action) Target() (ir.StateTag, error) {
	switch a {
	case ActionPick:
		return ir.StatePicked, nil
	case ActionProcure:
		return ir.StateInProcurement, nil
	case ActionSubstitute:
		return ir.StateSubstituted, nil
	case ActionReset:
		return ir.StatePending, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, string(a))
}

// Apply returns it with the action's resulting flags.
func (a Action) Apply(it ir.Item, substitute string) (ir.Item, error) {
	tag, err := a.Target()
	if err != nil {
		return ir.Item{}, err
	}
	if a == ActionSubstitute && substitute == "" {
		return ir.Item{}, fmt.Errorf("%w: substitute needs a substitute name", ErrInvalidAction)
	}

	it.Flags = ir.FlagsFor(tag)
	switch a {
	case ActionSubstitute:
		it.SubstituteName = substitute
	case ActionProcure, ActionReset:
		it.SubstituteName = ""
	}
	return it, nil
}

// TransitionRecord is one row of the transition log.
type TransitionRecord struct {
	Seq            int64
	EventID        string
	ListID         string
	ItemID         string
	Action         Action
	State          ir.StateTag
	SubstituteName string
}

// ApplyAction applies an action to an item and logs it under eventID, in
// one transaction. Replaying an eventID that was already applied returns
// the item's current value with applied=false and changes nothing.
func (s *Store) ApplyAction(ctx context.Context, eventID, listID, itemID string, a Action, substitute string) (it ir.Item, applied bool, err error) {
	if eventID == "" {
		return ir.Item{}, false, fmt.Errorf("apply %s: event id is required", a)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Item{}, false, fmt.Errorf("apply %s: %w", a, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var seen int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM transitions WHERE event_id = ?`, eventID).Scan(&seen)
	if err != nil {
		return ir.Item{}, false, fmt.Errorf("apply %s: %w", a, err)
	}

	cur, err := readItem(ctx, tx, listID, itemID)
	if err != nil {
		return ir.Item{}, false, fmt.Errorf("apply %s: %w", a, err)
	}
	if seen > 0 {
		if err = tx.Commit(); err != nil {
			return ir.Item{}, false, fmt.Errorf("apply %s: %w", a, err)
		}
		return cur, false, nil
	}

	next, err := a.Apply(cur, substitute)
	if err != nil {
		return ir.Item{}, false, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE items SET
			pending = ?, sent_for_procurement = ?, substituted = ?, picked = ?,
			substitute_name = ?, version = version + 1
		WHERE list_id = ? AND id = ?
	`,
		next.Flags.Pending,
		next.Flags.InProcurement,
		next.Flags.Substituted,
		next.Flags.Picked,
		next.SubstituteName,
		listID,
		itemID,
	)
	if err != nil {
		return ir.Item{}, false, fmt.Errorf("apply %s: %w", a, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transitions (event_id, list_id, item_id, action, state, substitute_name)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		eventID,
		listID,
		itemID,
		string(a),
		string(classify.Classify(next.Flags)),
		next.SubstituteName,
	)
	if err != nil {
		return ir.Item{}, false, fmt.Errorf("apply %s: log transition: %w", a, err)
	}

	if err = tx.Commit(); err != nil {
		return ir.Item{}, false, fmt.Errorf("apply %s: %w", a, err)
	}
	return next, true, nil
}

// Transitions returns the log of a list in application order.
func (s *Store) Transitions(ctx context.Context, listID string) ([]TransitionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, event_id, list_id, item_id, action, state, substitute_name
		FROM transitions
		WHERE list_id = ?
		ORDER BY seq ASC
	`, listID)
	if err != nil {
		return nil, fmt.Errorf("read transitions of %s: %w", listID, err)
	}
	defer rows.Close()

	var out []TransitionRecord
	for rows.Next() {
		var r TransitionRecord
		var action, state string
		if err := rows.Scan(&r.Seq, &r.EventID, &r.ListID, &r.ItemID, &action, &state, &r.SubstituteName); err != nil {
			return nil, fmt.Errorf("read transitions of %s: %w", listID, err)
		}
		r.Action = Action(action)
		r.State = ir.StateTag(state)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ensure sql.Tx satisfies querier.
var _ querier = (*sql.Tx)(nil)
