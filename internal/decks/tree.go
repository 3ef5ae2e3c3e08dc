// Package decks resolves the :: deck hierarchy from a flat list of decks.
package decks

import (
	"sort"
	"strings"

	"github.com/conorfennell/knolsched/internal/domain"
)

// Tree indexes decks by id and by case-folded name.
type Tree struct {
	byID   map[int64]*domain.Deck
	byName map[string]*domain.Deck
	sorted []*domain.Deck
}

// NewTree builds a Tree over the given decks. The tree owns copies of them.
func NewTree(list []domain.Deck) *Tree {
	t := &Tree{
		byID:   make(map[int64]*domain.Deck, len(list)),
		byName: make(map[string]*domain.Deck, len(list)),
	}
	for i := range list {
		d := list[i]
		t.byID[d.ID] = &d
		t.byName[strings.ToLower(d.Name)] = &d
		t.sorted = append(t.sorted, &d)
	}
	sort.Slice(t.sorted, func(i, j int) bool {
		return t.sorted[i].Name < t.sorted[j].Name
	})
	return t
}

// Get returns the deck with id, or nil.
func (t *Tree) Get(id int64) *domain.Deck {
	return t.byID[id]
}

// ByName returns the deck with the given name, ignoring case, or nil.
func (t *Tree) ByName(name string) *domain.Deck {
	return t.byName[strings.ToLower(name)]
}

// All returns every deck sorted by name.
func (t *Tree) All() []*domain.Deck {
	return t.sorted
}

// Parents returns the existing ancestors of id, top level first.
func (t *Tree) Parents(id int64) []*domain.Deck {
	d := t.byID[id]
	if d == nil {
		return nil
	}
	var parents []*domain.Deck
	for _, name := range domain.AncestorNames(d.Name) {
		if p := t.ByName(name); p != nil {
			parents = append(parents, p)
		}
	}
	return parents
}

// WithParents returns the deck followed by its ancestors.
func (t *Tree) WithParents(id int64) []*domain.Deck {
	d := t.byID[id]
	if d == nil {
		return nil
	}
	return append([]*domain.Deck{d}, t.Parents(id)...)
}

// Children returns every descendant of id sorted by name.
func (t *Tree) Children(id int64) []*domain.Deck {
	d := t.byID[id]
	if d == nil {
		return nil
	}
	prefix := strings.ToLower(d.Name) + domain.Separator
	var out []*domain.Deck
	for _, c := range t.sorted {
		if strings.HasPrefix(strings.ToLower(c.Name), prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Active returns the active deck set for a selection: the deck itself
// followed by its descendants.
func (t *Tree) Active(id int64) []int64 {
	if t.byID[id] == nil {
		return nil
	}
	ids := []int64{id}
	for _, c := range t.Children(id) {
		ids = append(ids, c.ID)
	}
	return ids
}
