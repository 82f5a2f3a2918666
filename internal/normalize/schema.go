// Package normalize turns extracted document data into the stable shipping
// instruction schema consumed by the document generation templates.
//
// Field values are gathered in two passes: a rules pass matching known label
// variants in the document text, then an optional model pass filling fields the
// rules could not resolve. Every resolved field carries a confidence score.
package normalize

// Party identifies one of the parties named on a shipping instruction.
type Party struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
	Contact string `json:"contact,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	VAT     string `json:"vat,omitempty"`
}

// Refs holds the reference numbers and dates tying the instruction to an order.
// Dates are normalized to YYYY-MM-DD.
type Refs struct {
	ShipmentNo            string `json:"shipment_no,omitempty"`
	OrderNoInternal       string `json:"order_no_internal,omitempty"`
	CustomerPO            string `json:"customer_po,omitempty"`
	DeliveryNo            string `json:"delivery_no,omitempty"`
	CustomerNo            string `json:"customer_no,omitempty"`
	LoadingDate           string `json:"loading_date,omitempty"`
	ScheduledDeliveryDate string `json:"scheduled_delivery_date,omitempty"`
}

// Shipping describes the routing terms of the shipment.
type Shipping struct {
	ShippingPoint   string `json:"shipping_point,omitempty"`
	Incoterms       string `json:"incoterms,omitempty"`
	WayOfForwarding string `json:"way_of_forwarding,omitempty"`
	POL             string `json:"pol,omitempty"`
	POD             string `json:"pod,omitempty"`
}

// Cargo describes the goods being shipped. Weights are in kilograms.
type Cargo struct {
	Description string   `json:"description,omitempty"`
	Packaging   []string `json:"packaging,omitempty"`
	NetKg       *float64 `json:"net_kg,omitempty"`
	GrossKg     *float64 `json:"gross_kg,omitempty"`
}

// Marks holds carton marks and labelling requirements.
type Marks struct {
	CartonMarks string `json:"carton_marks,omitempty"`
	Labelling   string `json:"labelling,omitempty"`
}

// BL holds bill of lading handling instructions.
type BL struct {
	Type string `json:"type,omitempty"`
}

// ShippingInstruction is the target schema. Its JSON field names must match the
// tags used by the document generation templates.
type ShippingInstruction struct {
	Shipper   Party    `json:"shipper"`
	Consignee Party    `json:"consignee"`
	Notify    Party    `json:"notify"`
	Refs      Refs     `json:"refs"`
	Shipping  Shipping `json:"shipping"`
	Cargo     Cargo    `json:"cargo"`
	Marks     Marks    `json:"marks"`
	BL        BL       `json:"bl"`
}

// targetKeys is the set of dotted field paths the normalizer may fill.
// Model output outside this set is discarded.
var targetKeys = map[string]struct{}{
	"shipper.name": {}, "shipper.address": {}, "shipper.contact": {},
	"shipper.email": {}, "shipper.phone": {}, "shipper.vat": {},
	"consignee.name": {}, "consignee.address": {}, "consignee.contact": {},
	"consignee.email": {}, "consignee.phone": {}, "consignee.vat": {},
	"notify.name": {}, "notify.address": {}, "notify.contact": {},
	"notify.email": {}, "notify.phone": {}, "notify.vat": {},
	"refs.shipment_no": {}, "refs.order_no_internal": {}, "refs.customer_po": {},
	"refs.delivery_no": {}, "refs.customer_no": {}, "refs.loading_date": {},
	"refs.scheduled_delivery_date": {},
	"shipping.shipping_point":      {}, "shipping.incoterms": {},
	"shipping.way_of_forwarding": {}, "shipping.pol": {}, "shipping.pod": {},
	"cargo.description": {}, "cargo.packaging": {}, "cargo.net_kg": {}, "cargo.gross_kg": {},
	"marks.carton_marks": {}, "marks.labelling": {},
	"bl.type": {},
}
