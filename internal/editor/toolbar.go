package editor

import (
	"errors"
	"fmt"

	"github.com/debemdeboas/folio/internal/render"
)

var ErrUnknownAction = errors.New("unknown toolbar action")

// Action is one toolbar button: the markup it wraps around the selection.
type Action struct {
	Name   string
	Label  string
	Icon   string
	Group  string
	Prefix string
	Suffix string
}

type Toolbar struct {
	actions []Action
	byName  map[string]int
}

func NewToolbar(actions ...Action) *Toolbar {
	t := &Toolbar{byName: make(map[string]int, len(actions))}
	for _, a := range actions {
		t.byName[a.Name] = len(t.actions)
		t.actions = append(t.actions, a)
	}
	return t
}

// DefaultToolbar has the formatting actions, one scaffold per admonition
// kind, and the code, math, image, link and latex inserts.
func DefaultToolbar() *Toolbar {
	actions := []Action{
		{Name: "bold", Label: "Bold", Icon: "fa-bold", Group: "format", Prefix: "**", Suffix: "**"},
		{Name: "italic", Label: "Italic", Icon: "fa-italic", Group: "format", Prefix: "*", Suffix: "*"},
		{Name: "h1", Label: "Heading 1", Icon: "fa-heading", Group: "heading", Prefix: "# "},
		{Name: "h2", Label: "Heading 2", Icon: "fa-heading", Group: "heading", Prefix: "## "},
		{Name: "h3", Label: "Heading 3", Icon: "fa-heading", Group: "heading", Prefix: "### "},
		{Name: "quote", Label: "Quote", Icon: "fa-quote-left", Group: "block", Prefix: "> "},
		{Name: "ul", Label: "Bulleted list", Icon: "fa-list-ul", Group: "block", Prefix: "- "},
		{Name: "ol", Label: "Numbered list", Icon: "fa-list-ol", Group: "block", Prefix: "1. "},
	}
	for _, kind := range render.AdmonitionKinds {
		a := render.Admonitions[kind]
		actions = append(actions, Action{
			Name:   kind,
			Label:  a.Label,
			Icon:   a.Icon,
			Group:  "admonition",
			Prefix: fmt.Sprintf(":::%s{title=\"\"}\n", kind),
			Suffix: "\n:::",
		})
	}
	actions = append(actions,
		Action{Name: "code", Label: "Code block", Icon: "fa-code", Group: "insert", Prefix: "```\n", Suffix: "\n```"},
		Action{Name: "math", Label: "Math", Icon: "fa-square-root-variable", Group: "insert", Prefix: "$", Suffix: "$"},
		Action{Name: "image", Label: "Image", Icon: "fa-image", Group: "insert", Prefix: "![alt](url)"},
		Action{Name: "link", Label: "Link", Icon: "fa-link", Group: "insert", Prefix: "[text](url)"},
		Action{Name: "latex", Label: "LaTeX document", Icon: "fa-file-pdf", Group: "insert", Prefix: "<latex>\n", Suffix: "\n</latex>"},
	)
	return NewToolbar(actions...)
}

func (t *Toolbar) Actions() []Action {
	return t.actions
}

func (t *Toolbar) Lookup(name string) (Action, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Action{}, false
	}
	return t.actions[i], true
}

// Groups returns the actions split by group, in first-seen order.
func (t *Toolbar) Groups() [][]Action {
	var groups [][]Action
	index := map[string]int{}
	for _, a := range t.actions {
		i, ok := index[a.Group]
		if !ok {
			i = len(groups)
			index[a.Group] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], a)
	}
	return groups
}

// Apply runs the named action on b. With nothing selected, an action that
// wraps leaves the cursor between its markers so typing fills them.
func (t *Toolbar) Apply(b *Buffer, name string) (Selection, error) {
	a, ok := t.Lookup(name)
	if !ok {
		return b.Selection(), fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}

	wasEmpty := b.Selection().Empty()
	start := b.Selection().Start
	sel := b.Insert(a.Prefix, a.Suffix)
	if wasEmpty && a.Suffix != "" {
		cursor := start + Units(a.Prefix)
		sel = b.Select(cursor, cursor)
	}
	return sel, nil
}
