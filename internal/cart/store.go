package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrCartNotFound indicates the requested cart could not be located.
var ErrCartNotFound = errors.New("cart not found")

// ErrRegionNotFound indicates an unknown region id on a cart mutation.
var ErrRegionNotFound = errors.New("region not found")

// QuantityChange adjusts one line item's quantity. Quantity is clamped to
// [1, 99] by the store.
type QuantityChange struct {
	LineItemID uuid.UUID `json:"id"`
	Quantity   int       `json:"quantity"`
}

// CartUpdate is a partial cart mutation; nil fields are left untouched.
type CartUpdate struct {
	RegionID        *string
	Email           *string
	CustomerID      *uuid.UUID
	ShippingAddress *Address
	Items           []QuantityChange
}

// LineItemPatch is a partial line item mutation; nil fields are left
// untouched. ClearVariantID detaches the variant linkage explicitly since a
// nil VariantID means "unchanged".
type LineItemPatch struct {
	Quantity       *int
	UnitPrice      *int64
	CurrencyCode   *string
	IsCustomPrice  *bool
	VariantID      *string
	ClearVariantID bool
	Metadata       map[string]any
}

// RegionInfo is the slice of the platform's region entity this core reads.
type RegionInfo struct {
	ID           string `json:"id"`
	CurrencyCode string `json:"currency_code"`
	CountryCode  string `json:"country_code"`
}

// RegionLookup resolves a region id to its currency and country.
type RegionLookup interface {
	Lookup(ctx context.Context, id string) (RegionInfo, error)
}

// Store is the platform cart storage collaborator. Each call is a single
// atomic operation; UpdateCart reproduces the platform's region-change
// machinery including per-region variant price validation, so its errors for
// duplicate guest identities and missing variant prices surface as plain
// message text, not typed codes.
type Store interface {
	GetCart(ctx context.Context, id uuid.UUID) (*Cart, error)
	CreateCart(ctx context.Context, regionID, salesChannelID string) (*Cart, error)
	UpdateCart(ctx context.Context, id uuid.UUID, upd CartUpdate) error
	AddLineItem(ctx context.Context, item *LineItem) error
	UpdateLineItem(ctx context.Context, cartID, itemID uuid.UUID, patch LineItemPatch) error
	FindGuestCustomerByEmail(ctx context.Context, email string) (*Customer, error)
}
