package content

import "strings"

// DefaultPrefix opens every caption unless configured otherwise
const DefaultPrefix = "New from Instagram:"

// Label is the human description of an item in a caption
func (it *Item) Label() string {
	if it.Kind == KindPost {
		return "post: latest"
	}
	if it.Audience == AudienceCloseFriends {
		return "story (close friends)"
	}
	return "story"
}

// FormatCaption builds the text sent with a batch: the prefix line, then for
// each item its label, its caption if any and a blank spacer line. The result
// is trimmed.
func FormatCaption(prefix string, items []*Item) string {
	lines := []string{prefix}
	for _, it := range items {
		lines = append(lines, it.Label())
		if it.Caption != "" {
			lines = append(lines, it.Caption)
		}
		lines = append(lines, "")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Truncate shortens s to at most n runes, marking the cut with "..."
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
