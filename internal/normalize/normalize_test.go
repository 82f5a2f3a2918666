package normalize_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cargodocs/cargodocs/internal/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockFiller returns canned model output, or an error.
type mockFiller struct {
	filled map[string]any
	err    error

	gotText    string
	gotPartial map[string]any
}

func (m *mockFiller) FillMissing(ctx context.Context, fullText string, partial map[string]any) (map[string]any, error) {
	m.gotText = fullText
	m.gotPartial = partial
	if m.err != nil {
		return nil, m.err
	}
	return m.filled, nil
}

// extraction wraps text lines in the structured extraction element format.
func extraction(t *testing.T, lines ...string) []byte {
	t.Helper()

	elements := make([]map[string]any, 0, len(lines))
	for _, l := range lines {
		elements = append(elements, map[string]any{"Text": l})
	}
	data, err := json.Marshal(map[string]any{"elements": elements})
	require.NoError(t, err, "Setup: cannot marshal extraction data")
	return data
}

func TestNormalizeRulesOnly(t *testing.T) {
	t.Parallel()

	n := normalize.New(nil)
	res, err := n.Normalize(context.Background(), extraction(t,
		"Shipment No: SHP-1001",
		"Net Weight: 2.500,00 kg",
		"Loading Date: 15.07.2024",
	))
	require.NoError(t, err, "Normalize should succeed without a filler")

	assert.Equal(t, "SHP-1001", res.Document.Refs.ShipmentNo, "Shipment number should come from the rules pass")
	require.NotNil(t, res.Document.Cargo.NetKg, "Net weight should be resolved")
	assert.InDelta(t, 2500.0, *res.Document.Cargo.NetKg, 0.001, "Net weight should be parsed as kilograms")
	assert.Equal(t, "2024-07-15", res.Document.Refs.LoadingDate, "Loading date should be normalized to ISO form")

	for key, c := range res.Confidence {
		assert.InDelta(t, 0.95, c, 0.001, "Rules-resolved field %s should carry the rules confidence", key)
	}
	assert.InDelta(t, 0.95, res.MeanConfidence(), 0.001, "Mean confidence should match the rules confidence")
}

func TestNormalizeWithFiller(t *testing.T) {
	t.Parallel()

	filler := &mockFiller{filled: map[string]any{
		"shipper": map[string]any{"name": "ACME GmbH"},
		"refs": map[string]any{
			"shipment_no":             "SHOULD-NOT-WIN",
			"scheduled_delivery_date": "20.08.2024",
		},
		"junk": map[string]any{"field": "discarded"},
	}}

	n := normalize.New(filler)
	res, err := n.Normalize(context.Background(), extraction(t, "Shipment No: SHP-1001"))
	require.NoError(t, err, "Normalize should succeed")

	assert.Equal(t, "SHP-1001", res.Document.Refs.ShipmentNo, "Rules output should win over model output")
	assert.Equal(t, "ACME GmbH", res.Document.Shipper.Name, "Model output should fill unresolved fields")
	assert.Equal(t, "2024-08-20", res.Document.Refs.ScheduledDeliveryDate, "Model dates should be normalized too")

	assert.InDelta(t, 0.95, res.Confidence["refs.shipment_no"], 0.001, "Rules-resolved field keeps the rules confidence")
	assert.InDelta(t, 0.75, res.Confidence["shipper.name"], 0.001, "Model-resolved field carries the model confidence")
	assert.NotContains(t, res.Confidence, "junk.field", "Keys outside the target schema should not be scored")

	assert.Contains(t, filler.gotText, "Shipment No: SHP-1001", "Filler should receive the document text")
	assert.Contains(t, filler.gotPartial, "refs", "Filler should receive the rules output")
}

func TestNormalizeFillerFailureDegrades(t *testing.T) {
	t.Parallel()

	filler := &mockFiller{err: errors.New("model unavailable")}

	n := normalize.New(filler)
	res, err := n.Normalize(context.Background(), extraction(t, "Shipment No: SHP-1001"))
	require.NoError(t, err, "A failing model pass should not fail normalization")
	assert.Equal(t, "SHP-1001", res.Document.Refs.ShipmentNo, "Rules output should survive a failing model pass")
}

func TestNormalizeBadInput(t *testing.T) {
	t.Parallel()

	n := normalize.New(nil)
	_, err := n.Normalize(context.Background(), []byte("not json"))
	require.Error(t, err, "Normalize should reject undecodable input")
}

func TestNormalizeEmptyDocument(t *testing.T) {
	t.Parallel()

	n := normalize.New(nil)
	res, err := n.Normalize(context.Background(), extraction(t))
	require.NoError(t, err, "Normalize should accept a document with no text")
	assert.Empty(t, res.Confidence, "Nothing should be resolved")
	assert.Zero(t, res.MeanConfidence(), "Mean confidence of an empty result is zero")
}

func TestPayload(t *testing.T) {
	t.Parallel()

	n := normalize.New(nil)
	res, err := n.Normalize(context.Background(), extraction(t, "Shipment No: SHP-1001"))
	require.NoError(t, err, "Setup: Normalize should succeed")

	payload, err := res.Payload()
	require.NoError(t, err, "Payload should marshal")

	var doc map[string]any
	require.NoError(t, json.Unmarshal(payload, &doc), "Payload should be valid JSON")

	refs, ok := doc["refs"].(map[string]any)
	require.True(t, ok, "Payload should contain the refs section")
	assert.Equal(t, "SHP-1001", refs["shipment_no"], "Payload should carry the resolved fields")

	conf, ok := doc["_confidence"].(map[string]any)
	require.True(t, ok, "Payload should carry the confidence map")
	assert.Contains(t, conf, "refs.shipment_no", "Confidence map should score the resolved field")
}
