package normalize

import (
	"regexp"
	"slices"
	"strings"
)

var multiNewline = regexp.MustCompile(`\n{3,}`)

// PlainText walks decoded structured extraction data and joins every "Text"
// element in document order, collapsing runs of blank lines.
//
// Document order comes from the element arrays in the extraction output. Map
// keys are visited in sorted order so the result is deterministic.
func PlainText(doc any) string {
	var texts []string

	var walk func(node any)
	walk = func(node any) {
		switch n := node.(type) {
		case map[string]any:
			if t, ok := n["Text"].(string); ok && strings.TrimSpace(t) != "" {
				texts = append(texts, strings.TrimSpace(t))
			}
			keys := make([]string, 0, len(n))
			for k := range n {
				if k == "Text" {
					continue
				}
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				walk(n[k])
			}
		case []any:
			for _, v := range n {
				walk(v)
			}
		}
	}
	walk(doc)

	return strings.TrimSpace(multiNewline.ReplaceAllString(strings.Join(texts, "\n"), "\n\n"))
}
