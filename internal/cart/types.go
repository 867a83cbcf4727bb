package cart

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Metadata keys carried by custom-priced line items. The EUR breakdown is the
// system of record for a custom price; everything else is derived.
const (
	MetaBreakdown        = "breakdown"
	MetaCurrency         = "currency"
	MetaFxRate           = "fx_rate"
	MetaVariantBackup    = "variant_id_backup"
	MetaDetachedVariants = "detached_variant_ids"
	MetaArtworkKey       = "artwork_key"
	MetaSize             = "size"
	MetaMaterial         = "material"
	MetaColor            = "color"
)

// Address is a cart shipping address. Country and province are owned by the
// region; the remaining fields are owned by the buyer.
type Address struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Company     string `json:"company,omitempty"`
	Address1    string `json:"address_1,omitempty"`
	Address2    string `json:"address_2,omitempty"`
	City        string `json:"city,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	Phone       string `json:"phone,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	Province    string `json:"province,omitempty"`
}

// LineItem is one cart row. Custom-priced items carry their EUR breakdown in
// Metadata; catalog-priced items are validated against variant prices.
type LineItem struct {
	ID             uuid.UUID      `json:"id"`
	CartID         uuid.UUID      `json:"cart_id"`
	Title          string         `json:"title"`
	ProductTitle   string         `json:"product_title,omitempty"`
	Quantity       int            `json:"quantity"`
	UnitPrice      int64          `json:"unit_price"`
	CurrencyCode   string         `json:"currency_code"`
	IsCustomPrice  bool           `json:"is_custom_price"`
	VariantID      *string        `json:"variant_id"`
	SalesChannelID string         `json:"sales_channel_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Cart aggregates line items under one region and optional guest identity.
type Cart struct {
	ID              uuid.UUID  `json:"id"`
	RegionID        string     `json:"region_id"`
	Email           string     `json:"email,omitempty"`
	CustomerID      *uuid.UUID `json:"customer_id,omitempty"`
	SalesChannelID  string     `json:"sales_channel_id,omitempty"`
	ShippingAddress *Address   `json:"shipping_address,omitempty"`
	Items           []LineItem `json:"items"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Customer is the guest/account identity owned by the platform.
type Customer struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	HasAccount bool      `json:"has_account"`
}

// Item returns the line item with the given id, or nil.
func (c *Cart) Item(id uuid.UUID) *LineItem {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return &c.Items[i]
		}
	}
	return nil
}

// CustomItems returns the cart's custom-priced line items.
func (c *Cart) CustomItems() []*LineItem {
	var out []*LineItem
	for i := range c.Items {
		if c.Items[i].IsCustomPrice {
			out = append(out, &c.Items[i])
		}
	}
	return out
}

// CloneMetadata deep-copies a metadata object through JSON so later mutation
// of either copy cannot alias the other.
func CloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// BreakdownTotalEUR extracts the EUR total from an item's metadata breakdown.
// Metadata has been through jsonb so numbers arrive as float64.
func BreakdownTotalEUR(meta map[string]any) (decimal.Decimal, bool) {
	if meta == nil {
		return decimal.Decimal{}, false
	}
	raw, ok := meta[MetaBreakdown]
	if !ok {
		return decimal.Decimal{}, false
	}
	b, ok := raw.(map[string]any)
	if !ok {
		return decimal.Decimal{}, false
	}
	total, ok := asFloat(b["total_eur"])
	if !ok || total <= 0 {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromFloat(total), true
}

// MetadataCurrency returns the declared currency tag on an item's metadata.
func MetadataCurrency(meta map[string]any) string {
	if meta == nil {
		return ""
	}
	if s, ok := meta[MetaCurrency].(string); ok {
		return s
	}
	return ""
}

// MetadataFxRate returns the fx_rate tag on an item's metadata.
func MetadataFxRate(meta map[string]any) (float64, bool) {
	if meta == nil {
		return 0, false
	}
	return asFloat(meta[MetaFxRate])
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
