package pricing

import "sort"

// Option is a single configurable choice on one axis with its EUR surcharge.
type Option struct {
	ID       string  `json:"id"`
	Label    string  `json:"label"`
	PriceEUR float64 `json:"price_eur"`
}

// RuleTable maps configuration axes to EUR surcharges and bounds quantities.
// It is immutable reference data; handlers share a single instance.
type RuleTable struct {
	Sizes     map[string]Option
	Materials map[string]Option
	Colors    map[string]Option
	MinQty    int
	MaxQty    int

	// incompatible holds material+color pairs rejected before pricing.
	incompatible map[[2]string]string
}

// DefaultRuleTable returns the canvas print rule table used by the storefront.
func DefaultRuleTable() *RuleTable {
	t := &RuleTable{
		Sizes: optionMap(
			Option{ID: "20x30", Label: "20 × 30 cm", PriceEUR: 39},
			Option{ID: "30x40", Label: "30 × 40 cm", PriceEUR: 49},
			Option{ID: "40x60", Label: "40 × 60 cm", PriceEUR: 59},
			Option{ID: "60x90", Label: "60 × 90 cm", PriceEUR: 79},
			Option{ID: "90x120", Label: "90 × 120 cm", PriceEUR: 109},
		),
		Materials: optionMap(
			Option{ID: "canvas-matte", Label: "Matte canvas", PriceEUR: 0},
			Option{ID: "canvas-gloss", Label: "Gloss canvas", PriceEUR: 5},
			Option{ID: "fine-art-paper", Label: "Fine art paper", PriceEUR: 9},
			Option{ID: "aluminum-dibond", Label: "Aluminium dibond", PriceEUR: 29},
		),
		Colors: optionMap(
			Option{ID: "white-edge", Label: "White edge", PriceEUR: 0},
			Option{ID: "black-edge", Label: "Black edge", PriceEUR: 0},
			Option{ID: "mirror-edge", Label: "Mirror wrap", PriceEUR: 5},
			Option{ID: "raw-edge", Label: "Raw edge", PriceEUR: 0},
		),
		MinQty: 1,
		MaxQty: 10,
	}
	t.incompatible = map[[2]string]string{
		// Gloss coating cannot be applied over an unfolded edge.
		{"canvas-gloss", "raw-edge"}: "gloss canvas cannot be combined with a raw edge",
		// Dibond plates are cut flush, there is no wrap to mirror.
		{"aluminum-dibond", "mirror-edge"}: "aluminium dibond cannot be combined with a mirror wrap",
	}
	return t
}

// ClampQuantity forces qty into the table's [min, max] range.
func (t *RuleTable) ClampQuantity(qty int) int {
	if qty < t.MinQty {
		return t.MinQty
	}
	if qty > t.MaxQty {
		return t.MaxQty
	}
	return qty
}

// IncompatibleReason returns a human readable reason when the material+color
// pair is known to be unbuildable, or "" when the pair is allowed.
func (t *RuleTable) IncompatibleReason(material, color string) string {
	return t.incompatible[[2]string{material, color}]
}

// SizeOptions returns the size options in a stable order for UI rendering.
func (t *RuleTable) SizeOptions() []Option { return sortedOptions(t.Sizes) }

// MaterialOptions returns the material options in a stable order.
func (t *RuleTable) MaterialOptions() []Option { return sortedOptions(t.Materials) }

// ColorOptions returns the color options in a stable order.
func (t *RuleTable) ColorOptions() []Option { return sortedOptions(t.Colors) }

func optionMap(opts ...Option) map[string]Option {
	m := make(map[string]Option, len(opts))
	for _, o := range opts {
		m[o.ID] = o
	}
	return m
}

func sortedOptions(m map[string]Option) []Option {
	out := make([]Option, 0, len(m))
	for _, o := range m {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriceEUR != out[j].PriceEUR {
			return out[i].PriceEUR < out[j].PriceEUR
		}
		return out[i].ID < out[j].ID
	})
	return out
}
