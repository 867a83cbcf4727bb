package cart

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LineItemSnapshot is an immutable capture of one custom line item taken
// before a cart mutation. It exists for the duration of one orchestrated
// request; on success it is discarded, on failure it drives the rollback.
type LineItemSnapshot struct {
	ID            uuid.UUID
	Title         string
	ProductTitle  string
	Quantity      int
	UnitPrice     *int64
	CurrencyCode  string
	VariantID     *string
	IsCustomPrice bool
	Metadata      map[string]any
}

// RestoreError records one line item that could not be rolled back. Restore
// failures are reported, never thrown: a failed primary mutation must not be
// masked by a secondary restore failure.
type RestoreError struct {
	ItemID uuid.UUID
	Err    error
}

// SnapshotCustomItems captures every custom-priced line item of a cart.
// Metadata is deep-cloned so the snapshot cannot alias the live cart.
func SnapshotCustomItems(c *Cart) []LineItemSnapshot {
	if c == nil {
		return nil
	}
	var snaps []LineItemSnapshot
	for i := range c.Items {
		item := &c.Items[i]
		if !item.IsCustomPrice {
			continue
		}
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		price := item.UnitPrice
		var variantID *string
		if item.VariantID != nil {
			v := *item.VariantID
			variantID = &v
		}
		snaps = append(snaps, LineItemSnapshot{
			ID:            item.ID,
			Title:         item.Title,
			ProductTitle:  item.ProductTitle,
			Quantity:      qty,
			UnitPrice:     &price,
			CurrencyCode:  item.CurrencyCode,
			VariantID:     variantID,
			IsCustomPrice: true,
			Metadata:      CloneMetadata(item.Metadata),
		})
	}
	return snaps
}

// SnapshotShippingAddress clones the whitelisted shipping address fields.
func SnapshotShippingAddress(c *Cart) *Address {
	if c == nil || c.ShippingAddress == nil {
		return nil
	}
	clone := *c.ShippingAddress
	return &clone
}

// SnapshotManager restores captured line item state onto a cart.
type SnapshotManager struct {
	Store  Store
	Logger zerolog.Logger
}

// Restore re-applies each snapshot onto the cart's line items by id. It is
// best-effort; per-item failures are collected and returned for logging, and
// the method itself never fails.
func (m *SnapshotManager) Restore(ctx context.Context, cartID uuid.UUID, snaps []LineItemSnapshot) []RestoreError {
	var failures []RestoreError
	for _, snap := range snaps {
		patch := LineItemPatch{
			IsCustomPrice: boolPtr(true),
			Quantity:      intPtr(snap.Quantity),
			UnitPrice:     snap.UnitPrice,
			Metadata:      CloneMetadata(snap.Metadata),
		}
		if snap.CurrencyCode != "" {
			code := snap.CurrencyCode
			patch.CurrencyCode = &code
		}
		if snap.VariantID != nil {
			v := *snap.VariantID
			patch.VariantID = &v
		}
		if err := m.Store.UpdateLineItem(ctx, cartID, snap.ID, patch); err != nil {
			failures = append(failures, RestoreError{ItemID: snap.ID, Err: err})
			m.Logger.Warn().
				Err(err).
				Str("cart_id", cartID.String()).
				Str("line_item_id", snap.ID.String()).
				Msg("snapshot restore failed for line item")
		}
	}
	return failures
}

func boolPtr(v bool) *bool { return &v }

func intPtr(v int) *int { return &v }

func int64Ptr(v int64) *int64 { return &v }

func strPtr(v string) *string { return &v }
