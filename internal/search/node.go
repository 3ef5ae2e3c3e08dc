package search

import (
	"fmt"
	"math"
	"strings"
)

// Env carries the values a compiled predicate depends on.
type Env struct {
	Today  int64
	Cutoff int64
}

// Node is a parsed query expression.
type Node interface {
	compile(b *builder)
}

// Compile renders n as an SQL boolean expression and its positional arguments.
func Compile(n Node, env Env) (string, []any) {
	b := &builder{env: env}
	n.compile(b)
	return b.sb.String(), b.args
}

type builder struct {
	sb   strings.Builder
	args []any
	env  Env
}

func (b *builder) write(s string, args ...any) {
	b.sb.WriteString(s)
	b.args = append(b.args, args...)
}

// All matches every card.
type All struct{}

func (All) compile(b *builder) { b.write("1") }

// And matches when every child matches.
type And []Node

func (a And) compile(b *builder) { joinNodes(b, a, " AND ") }

// Or matches when any child matches.
type Or []Node

func (o Or) compile(b *builder) { joinNodes(b, o, " OR ") }

func joinNodes(b *builder, nodes []Node, sep string) {
	b.write("(")
	for i, n := range nodes {
		if i > 0 {
			b.write(sep)
		}
		n.compile(b)
	}
	b.write(")")
}

// Not inverts its child.
type Not struct {
	Child Node
}

func (n Not) compile(b *builder) {
	b.write("NOT (")
	n.Child.compile(b)
	b.write(")")
}

// Text matches a substring of the note's question, answer or context.
// '*' matches any run of characters.
type Text struct {
	Value string
}

func (t Text) compile(b *builder) {
	pat := "%" + likePattern(t.Value) + "%"
	b.write(`(n.question LIKE ? ESCAPE '\' OR n.answer LIKE ? ESCAPE '\' OR n.context LIKE ? ESCAPE '\')`, pat, pat, pat)
}

// Deck matches cards whose home or current deck is the named deck or one of
// its descendants. The name "filtered" matches cards in any filtered deck.
type Deck struct {
	Name string
}

func (d Deck) compile(b *builder) {
	switch strings.ToLower(d.Name) {
	case "*":
		b.write("1")
		return
	case "filtered":
		b.write("c.did IN (SELECT id FROM decks WHERE filtered = 1)")
		return
	}
	name := likePattern(d.Name)
	sub := `SELECT id FROM decks WHERE name LIKE ? ESCAPE '\' OR name LIKE ? ESCAPE '\'`
	b.write("(c.did IN ("+sub+") OR c.odid IN ("+sub+"))", name, name+"::%", name, name+"::%")
}

// Tag matches notes carrying the tag. "none" matches untagged notes.
type Tag struct {
	Name string
}

func (t Tag) compile(b *builder) {
	if strings.EqualFold(t.Name, "none") {
		b.write("n.tags = ''")
		return
	}
	b.write(`n.tags LIKE ? ESCAPE '\'`, "% "+likePattern(t.Name)+" %")
}

// State is the argument of an is: term.
type State string

const (
	StateNew       State = "new"
	StateLearn     State = "learn"
	StateReview    State = "review"
	StateDue       State = "due"
	StateSuspended State = "suspended"
	StateBuried    State = "buried"
)

func (s State) valid() bool {
	switch s {
	case StateNew, StateLearn, StateReview, StateDue, StateSuspended, StateBuried:
		return true
	}
	return false
}

// Is matches cards in a scheduling state.
type Is struct {
	State State
}

func (i Is) compile(b *builder) {
	switch i.State {
	case StateNew:
		b.write("c.type = 0")
	case StateLearn:
		b.write("c.queue IN (1, 3)")
	case StateReview:
		b.write("c.type IN (2, 3)")
	case StateDue:
		b.write("((c.queue IN (2, 3) AND c.due <= ?) OR (c.queue = 1 AND c.due <= ?))", b.env.Today, b.env.Cutoff)
	case StateSuspended:
		b.write("c.queue = -1")
	case StateBuried:
		b.write("c.queue IN (-2, -3)")
	}
}

// Field is a numeric card property usable in a prop: term.
type Field string

var propColumns = map[Field]string{
	"ivl":    "c.ivl",
	"due":    "c.due",
	"lapses": "c.lapses",
	"reps":   "c.reps",
	"ease":   "c.factor",
}

// Prop compares a numeric card property.
type Prop struct {
	Field Field
	Op    string
	Value float64
}

func (p Prop) compile(b *builder) {
	col := propColumns[p.Field]
	switch p.Field {
	case "ease":
		// factors are stored in permille
		b.write(fmt.Sprintf("(%s %s ?)", col, p.Op), int64(math.Round(p.Value*1000)))
	case "due":
		// relative to today, review cards only
		b.write(fmt.Sprintf("(c.queue IN (2, 3) AND %s - ? %s ?)", col, p.Op), b.env.Today, p.Value)
	default:
		b.write(fmt.Sprintf("(%s %s ?)", col, p.Op), p.Value)
	}
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, `%`)
	return r.Replace(s)
}
