package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// Confidence assigned to fields resolved by each pass.
const (
	ruleConfidence  = 0.95
	modelConfidence = 0.75
)

var (
	dashOnly     = regexp.MustCompile(`^[\-–—]+$`)
	valueCut     = regexp.MustCompile(`\s{2,}|\n`)
	europeanDate = regexp.MustCompile(`^(\d{2})[./-](\d{2})[./-](\d{4})$`)
	isoDate      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	packagingRx  = regexp.MustCompile(`(?i)Packaging\s*[:：]?\s*([\s\S]{0,600})`)
	packagingEnd = regexp.MustCompile(`(?i)^(Net|Gross|HS|Incoterm|B/L|Marks)`)
)

// labelVariants maps each dotted target key the rules pass can resolve to the
// label spellings seen on real shipping documents.
var labelVariants = map[string][]string{
	"refs.shipment_no":             {"Shipment No", "Shipment Number", "Shipment#"},
	"refs.order_no_internal":       {"Order No", "Order Number", "Ord. Nr"},
	"refs.customer_po":             {"Customer PO", "Customer Order", "PO Number"},
	"refs.delivery_no":             {"Delivery No", "Delivery Number"},
	"refs.customer_no":             {"Customer No", "Customer Number", "Customer ID"},
	"refs.loading_date":            {"Loading Date", "Load Date"},
	"refs.scheduled_delivery_date": {"Scheduled Delivery Date", "Delivery Date", "ETA"},
	"shipping.incoterms":           {"Incoterms", "Incoterm"},
	"shipping.way_of_forwarding":   {"Way of Forwarding", "Mode of Transport"},
	"bl.type":                      {"B/L Type", "Bill of Lading Type"},
}

// ExtractCandidates runs the rules pass over the document text and returns the
// dotted-key values it could resolve.
func ExtractCandidates(fullText string) map[string]any {
	candidates := make(map[string]any)

	for key, labels := range labelVariants {
		if v := findValue(fullText, labels); v != "" {
			candidates[key] = v
		}
	}

	if w, ok := findWeight(fullText, []string{"Net Weight", "Net Wt"}); ok {
		candidates["cargo.net_kg"] = w
	}
	if w, ok := findWeight(fullText, []string{"Gross Weight", "Gross Wt"}); ok {
		candidates["cargo.gross_kg"] = w
	}

	if v := findValue(fullText, []string{"Cargo Description", "Description of Goods", "Commodity"}); v != "" {
		candidates["cargo.description"] = v
	}
	if items := findPackaging(fullText); len(items) > 0 {
		candidates["cargo.packaging"] = items
	}
	if v := findValue(fullText, []string{"Marks", "Marks & Numbers", "Shipping Marks"}); v != "" {
		candidates["marks.carton_marks"] = v
	}
	if v := findValue(fullText, []string{"Labelling", "Labeling", "Labels"}); v != "" {
		candidates["marks.labelling"] = v
	}

	return candidates
}

// labelPattern quotes a label for use in a matching regexp. Labels ending in a
// word character get a trailing boundary so that "Shipment No" does not match
// inside "Shipment Number".
func labelPattern(label string) string {
	pattern := regexp.QuoteMeta(label)
	if r := label[len(label)-1]; r == '_' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
		pattern += `\b`
	}
	return pattern
}

// findValue looks for "<label>: <value>" lines, trying each label variant in
// order. The value is cut at the first run of two or more spaces or a newline.
func findValue(fullText string, labels []string) string {
	for _, label := range labels {
		rx := regexp.MustCompile(`(?im)` + labelPattern(label) + `\s*[:：]?\s*(.+)$`)
		m := rx.FindStringSubmatch(fullText)
		if m == nil {
			continue
		}
		val := strings.TrimSpace(valueCut.Split(m[1], 2)[0])
		if val != "" && !dashOnly.MatchString(val) {
			return val
		}
	}
	return ""
}

// findWeight parses "<label>: 1.234,56 kg" values. Weights on these documents
// use European digit grouping, so dots are dropped and the comma becomes the
// decimal separator.
func findWeight(fullText string, labels []string) (float64, bool) {
	for _, label := range labels {
		rx := regexp.MustCompile(`(?i)` + labelPattern(label) + `\s*[:：]?\s*([\d.,]+)\s*kg`)
		m := rx.FindStringSubmatch(fullText)
		if m == nil {
			continue
		}
		num := strings.ReplaceAll(m[1], ".", "")
		num = strings.ReplaceAll(num, ",", ".")
		if w, err := strconv.ParseFloat(num, 64); err == nil {
			return w, true
		}
	}
	return 0, false
}

// findPackaging collects the bullet lines following a "Packaging" label,
// stopping at the next known section label.
func findPackaging(fullText string) []string {
	m := packagingRx.FindStringSubmatch(fullText)
	if m == nil {
		return nil
	}

	var items []string
	lines := strings.Split(m[1], "\n")
	if len(lines) > 10 {
		lines = lines[:10]
	}
	for _, line := range lines {
		line = strings.TrimSpace(strings.Trim(line, "-• \t"))
		if line == "" || packagingEnd.MatchString(line) {
			break
		}
		if len(line) > 2 {
			items = append(items, line)
		}
	}
	return items
}

// NormalizeDate rewrites dd.mm.yyyy, dd-mm-yyyy and dd/mm/yyyy dates to
// yyyy-mm-dd. Dates already in ISO form and unrecognized values pass through.
func NormalizeDate(v string) string {
	v = strings.TrimSpace(v)
	if m := europeanDate.FindStringSubmatch(v); m != nil {
		return m[3] + "-" + m[2] + "-" + m[1]
	}
	if isoDate.MatchString(v) {
		return v
	}
	return v
}
