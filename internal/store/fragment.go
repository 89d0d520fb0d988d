package store

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/roach88/pickboard/internal/classify"
	"github.com/roach88/pickboard/internal/ir"
)

var itemTemplate = template.Must(template.New("item").Parse(
	`<li class="item item--{{.State}}" data-item-id="{{.ID}}">` +
		`<span class="item__name">{{.DisplayKey}}</span>` +
		`{{if .SubstituteName}}<span class="item__substitute">{{.SubstituteName}}</span>{{end}}` +
		`</li>`))

// Render builds the fragment the server ships for an item.
func Render(it ir.Item) (ir.Fragment, error) {
	var b bytes.Buffer
	err := itemTemplate.Execute(&b, struct {
		ir.Item
		State ir.StateTag
	}{it, classify.Classify(it.Flags)})
	if err != nil {
		return ir.Fragment{}, fmt.Errorf("render %s: %w", it.ID, err)
	}
	return ir.FragmentOf(it, b.String()), nil
}

// Fragment reads an item and renders it.
func (s *Store) Fragment(ctx context.Context, listID, itemID string) (ir.Fragment, error) {
	it, err := s.ReadItem(ctx, listID, itemID)
	if err != nil {
		return ir.Fragment{}, err
	}
	return Render(it)
}
