package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidSelection tags user-correctable selection errors for errors.Is.
var ErrInvalidSelection = errors.New("invalid selection")

// InvalidSelectionError reports which axis carried an unknown or incompatible value.
type InvalidSelectionError struct {
	Axis   string
	Value  string
	Reason string
}

// Error implements the error interface.
func (e *InvalidSelectionError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("unknown %s: %s", e.Axis, e.Value)
}

// Unwrap allows errors.Is(err, ErrInvalidSelection).
func (e *InvalidSelectionError) Unwrap() error { return ErrInvalidSelection }

// Selection is one custom product configuration. Immutable once priced.
type Selection struct {
	Size     string `json:"size" validate:"required"`
	Material string `json:"material" validate:"required"`
	Color    string `json:"color" validate:"required"`
	Quantity int    `json:"qty"`
}

// Breakdown is the EUR price decomposition of a selection. It is the single
// source of truth for a custom item; every other-currency amount must be
// re-derivable from TotalEUR at any time.
type Breakdown struct {
	BaseEUR     float64 `json:"base_eur"`
	MaterialEUR float64 `json:"material_eur"`
	ColorEUR    float64 `json:"color_eur"`
	TotalEUR    float64 `json:"total_eur"`
}

// Quote is a priced selection in a target currency.
type Quote struct {
	Breakdown      Breakdown `json:"breakdown"`
	Currency       string    `json:"currency"`
	FxRate         float64   `json:"fx_rate"`
	UnitPrice      float64   `json:"unit_price"`
	UnitPriceMinor int64     `json:"unit_price_minor"`
	Subtotal       float64   `json:"subtotal"`
	SubtotalMinor  int64     `json:"subtotal_minor"`
	Qty            int       `json:"qty"`
}

// Calculator prices selections against the rule table. Pure; no hidden state.
type Calculator struct {
	Rules *RuleTable
	FX    *Converter
}

// ValidateSelections rejects known-incompatible axis combinations. It must be
// evaluated before CalculatePrice by every entry point; it is an allow/deny
// rule set, not pricing math.
func (c *Calculator) ValidateSelections(sel Selection) error {
	if reason := c.Rules.IncompatibleReason(sel.Material, sel.Color); reason != "" {
		return &InvalidSelectionError{Axis: "color", Value: sel.Color, Reason: reason}
	}
	return nil
}

// CalculatePrice validates the selection against the rule table, computes the
// EUR breakdown and converts it into the target currency. Quantity is clamped
// silently into the table's bounds, never rejected.
func (c *Calculator) CalculatePrice(sel Selection, target Currency) (Quote, error) {
	size, ok := c.Rules.Sizes[sel.Size]
	if !ok {
		return Quote{}, &InvalidSelectionError{Axis: "size", Value: sel.Size}
	}
	material, ok := c.Rules.Materials[sel.Material]
	if !ok {
		return Quote{}, &InvalidSelectionError{Axis: "material", Value: sel.Material}
	}
	color, ok := c.Rules.Colors[sel.Color]
	if !ok {
		return Quote{}, &InvalidSelectionError{Axis: "color", Value: sel.Color}
	}

	qty := c.Rules.ClampQuantity(sel.Quantity)
	totalEUR := decimal.NewFromFloat(size.PriceEUR).
		Add(decimal.NewFromFloat(material.PriceEUR)).
		Add(decimal.NewFromFloat(color.PriceEUR))

	unitMajor := c.FX.EURToMajor(totalEUR, target)
	unitMinor := MajorToMinor(unitMajor, target)
	subtotalMinor := unitMinor * int64(qty)
	subtotalMajor := MinorToMajor(subtotalMinor, target)

	total, _ := totalEUR.Float64()
	unit, _ := unitMajor.Float64()
	subtotal, _ := subtotalMajor.Float64()

	return Quote{
		Breakdown: Breakdown{
			BaseEUR:     size.PriceEUR,
			MaterialEUR: material.PriceEUR,
			ColorEUR:    color.PriceEUR,
			TotalEUR:    total,
		},
		Currency:       string(target),
		FxRate:         c.FX.Rate(target),
		UnitPrice:      unit,
		UnitPriceMinor: unitMinor,
		Subtotal:       subtotal,
		SubtotalMinor:  subtotalMinor,
		Qty:            qty,
	}, nil
}
