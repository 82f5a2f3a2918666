package normalize_test

import (
	"encoding/json"
	"testing"

	"github.com/cargodocs/cargodocs/internal/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainText(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		doc string

		want string
	}{
		"Nil document": {
			doc:  `null`,
			want: "",
		},
		"Element array in order": {
			doc:  `{"elements":[{"Text":"first"},{"Text":"second"},{"Text":"third"}]}`,
			want: "first\nsecond\nthird",
		},
		"Blank text elements are skipped": {
			doc:  `{"elements":[{"Text":"a"},{"Text":"   "},{"Text":"b"}]}`,
			want: "a\nb",
		},
		"Nested text under table cells": {
			doc:  `{"elements":[{"Text":"header","Kids":[{"Text":"cell"}]}]}`,
			want: "header\ncell",
		},
		"Non-string Text values are ignored": {
			doc:  `{"elements":[{"Text":42},{"Text":"kept"}]}`,
			want: "kept",
		},
		"Text values are trimmed": {
			doc:  `{"elements":[{"Text":"  padded  "}]}`,
			want: "padded",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var doc any
			require.NoError(t, json.Unmarshal([]byte(tc.doc), &doc), "Setup: cannot decode document")

			assert.Equal(t, tc.want, normalize.PlainText(doc), "PlainText should join text elements in order")
		})
	}
}

func TestPlainTextDeterministic(t *testing.T) {
	t.Parallel()

	var doc any
	require.NoError(t, json.Unmarshal([]byte(
		`{"b":{"Text":"beta"},"a":{"Text":"alpha"},"c":{"Text":"gamma"}}`), &doc),
		"Setup: cannot decode document")

	first := normalize.PlainText(doc)
	for range 20 {
		assert.Equal(t, first, normalize.PlainText(doc), "PlainText should be stable across runs")
	}
	assert.Equal(t, "alpha\nbeta\ngamma", first, "Sibling maps should be visited in key order")
}
