package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Filler fills fields the rules pass could not resolve. It returns a nested
// document keyed like the target schema.
type Filler interface {
	FillMissing(ctx context.Context, fullText string, partial map[string]any) (map[string]any, error)
}

// Result is the outcome of normalizing one extracted document.
type Result struct {
	Document   ShippingInstruction
	Confidence map[string]float64
}

// MeanConfidence returns the average confidence across resolved fields,
// or 0 when nothing was resolved.
func (r Result) MeanConfidence() float64 {
	if len(r.Confidence) == 0 {
		return 0
	}
	var sum float64
	for _, c := range r.Confidence {
		sum += c
	}
	return sum / float64(len(r.Confidence))
}

// Payload returns the generation data file contents: the schema document with
// the per-field confidence map attached under "_confidence".
func (r Result) Payload() ([]byte, error) {
	raw, err := json.Marshal(r.Document)
	if err != nil {
		return nil, fmt.Errorf("marshaling document: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling document: %v", err)
	}
	doc["_confidence"] = r.Confidence

	return json.MarshalIndent(doc, "", "  ")
}

// Normalizer converts structured extraction data into ShippingInstruction
// documents.
type Normalizer struct {
	filler Filler

	log *slog.Logger
}

type options struct {
	Logger *slog.Logger
}

// Options represents an optional function to override Normalizer default values.
type Options func(*options)

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Options {
	return func(o *options) {
		o.Logger = log
	}
}

// New creates a Normalizer. filler may be nil, in which case only the rules
// pass runs.
func New(filler Filler, args ...Options) *Normalizer {
	opts := options{
		Logger: slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Normalizer{
		filler: filler,
		log:    opts.Logger,
	}
}

// Normalize runs the rules pass and the optional model pass over the raw
// structured extraction JSON and validates the merged output against the
// target schema.
//
// A failing model pass is not fatal: the result degrades to rules-only output.
func (n *Normalizer) Normalize(ctx context.Context, structuredData []byte) (Result, error) {
	var doc any
	if err := json.Unmarshal(structuredData, &doc); err != nil {
		return Result{}, fmt.Errorf("decoding structured data: %v", err)
	}

	fullText := PlainText(doc)
	ruleHits := ExtractCandidates(fullText)

	partial := make(map[string]any)
	confidence := make(map[string]float64, len(ruleHits))
	for key, value := range ruleHits {
		mergePath(partial, key, value)
		confidence[key] = ruleConfidence
	}

	if n.filler != nil {
		filled, err := n.filler.FillMissing(ctx, fullText, partial)
		if err != nil {
			n.log.Warn("Model fill pass failed, keeping rules-only output", "err", err)
		} else {
			deepMerge(partial, filled)
		}
	}

	for key := range flatten(partial, "") {
		if _, known := targetKeys[key]; !known {
			continue
		}
		if _, ok := confidence[key]; !ok {
			confidence[key] = modelConfidence
		}
	}

	normalizeDates(partial)

	var instruction ShippingInstruction
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &instruction,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("creating schema decoder: %v", err)
	}
	if err := decoder.Decode(partial); err != nil {
		return Result{}, fmt.Errorf("merged data does not fit the target schema: %w", err)
	}

	return Result{Document: instruction, Confidence: confidence}, nil
}

// mergePath sets a dotted-key value inside a nested map, creating intermediate
// maps as needed.
func mergePath(out map[string]any, dottedKey string, value any) {
	parts := strings.Split(dottedKey, ".")
	cur := out
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

// deepMerge merges src into dst. Values already present in dst win over model
// output; nested maps are merged recursively.
func deepMerge(dst, src map[string]any) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]any); ok {
			dstMap, ok := dst[key].(map[string]any)
			if !ok {
				dstMap = make(map[string]any)
				dst[key] = dstMap
			}
			deepMerge(dstMap, srcMap)
			continue
		}
		if _, exists := dst[key]; !exists {
			dst[key] = srcVal
		}
	}
}

// flatten returns the dotted-key view of a nested map.
func flatten(m map[string]any, prefix string) map[string]any {
	out := make(map[string]any)
	for key, value := range m {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			for k, v := range flatten(nested, path) {
				out[k] = v
			}
			continue
		}
		out[path] = value
	}
	return out
}

// normalizeDates rewrites the two date fields in refs to ISO form in place.
func normalizeDates(partial map[string]any) {
	refs, ok := partial["refs"].(map[string]any)
	if !ok {
		return
	}
	for _, key := range []string{"loading_date", "scheduled_delivery_date"} {
		if v, ok := refs[key].(string); ok {
			refs[key] = NormalizeDate(v)
		}
	}
}
