package domain

import "strings"

// Note is the content a card is generated from. Only the tag set matters to
// scheduling; the fields are carried for the CLI.
type Note struct {
	ID       int64
	GUID     string
	Checksum string
	Question string
	Answer   string
	Context  string
	Tags     []string
	Deck     string
}

// HasTag reports whether the note carries tag, ignoring case.
func (n *Note) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// AddTag adds tag unless already present. It reports whether the set changed.
func (n *Note) AddTag(tag string) bool {
	if tag == "" || n.HasTag(tag) {
		return false
	}
	n.Tags = append(n.Tags, tag)
	return true
}

// JoinTags renders tags in the stored form: space separated with a leading and
// trailing space so a LIKE '% tag %' match finds whole words.
func JoinTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return " " + strings.Join(tags, " ") + " "
}

// SplitTags parses the stored form back into a slice.
func SplitTags(s string) []string {
	return strings.Fields(s)
}
