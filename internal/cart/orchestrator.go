package cart

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-atelier/internal/obs"
	"github.com/noah-isme/backend-atelier/internal/pricing"
)

// baseUpdateAttempts is the fixed part of the mutation retry budget; one
// extra attempt is granted per snapshotted custom item since each item can
// independently trip the variant price validation.
const baseUpdateAttempts = 3

// UpdateRequest is the inbound cart update payload; nil fields are omitted.
type UpdateRequest struct {
	RegionID        *string          `json:"region_id"`
	Email           *string          `json:"email"`
	ShippingAddress *Address         `json:"shipping_address"`
	Items           []QuantityChange `json:"items"`
}

// Orchestrator sequences a cart update: snapshot, detach when the region will
// change, mutate with bounded retry against the recoverable platform
// conflicts, then reconcile or roll back. The snapshot is owned exclusively
// by one request and discarded when it returns.
type Orchestrator struct {
	Store      Store
	Regions    RegionLookup
	Reconciler *Reconciler
	Manager    *SnapshotManager
	Logger     zerolog.Logger
}

// UpdateCart runs one orchestrated cart update and returns the refreshed
// cart. On an unrecoverable failure any pre-emptive detach is rolled back
// before the original error propagates; the cart is never left with
// mis-flagged line items.
func (o *Orchestrator) UpdateCart(ctx context.Context, cartID uuid.UUID, req UpdateRequest) (*Cart, error) {
	cart, err := o.Store.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	snaps := SnapshotCustomItems(cart)
	addrSnap := SnapshotShippingAddress(cart)
	regionChanging := req.RegionID != nil && (cart.RegionID == "" || *req.RegionID != cart.RegionID)

	detached := false
	if regionChanging && len(snaps) > 0 {
		if err := o.Reconciler.PrepareCustomItemsForRegionChange(ctx, cart); err != nil {
			return nil, err
		}
		detached = true
	}

	upd := CartUpdate{
		RegionID:        req.RegionID,
		Email:           req.Email,
		ShippingAddress: req.ShippingAddress,
		Items:           req.Items,
	}

	attempts := baseUpdateAttempts + len(snaps)
	var mutationErr error
	for attempt := 0; attempt < attempts; attempt++ {
		mutationErr = o.Store.UpdateCart(ctx, cartID, upd)
		if mutationErr == nil {
			break
		}
		kind, recoverable := ClassifyConflict(mutationErr)
		if !recoverable || !o.resolveConflict(ctx, cartID, kind, req, snaps, &upd) {
			break
		}
		incRetry(string(kind))
	}

	if mutationErr != nil {
		if detached {
			o.Manager.Restore(ctx, cartID, snaps)
			if obs.CartSnapshotRestoreTotal != nil {
				obs.CartSnapshotRestoreTotal.Inc()
			}
		}
		return nil, mutationErr
	}

	if regionChanging {
		return o.Reconciler.Reconcile(ctx, cartID, snaps, addrSnap, o.targetCurrency(ctx, *req.RegionID, snaps))
	}
	return o.Store.GetCart(ctx, cartID)
}

// resolveConflict attempts the local fix for one recoverable conflict kind.
// It reports false when resolution is impossible, in which case the original
// mutation error propagates unchanged.
func (o *Orchestrator) resolveConflict(ctx context.Context, cartID uuid.UUID, kind ConflictKind, req UpdateRequest, snaps []LineItemSnapshot, upd *CartUpdate) bool {
	switch kind {
	case ConflictGuestEmail:
		if req.Email == nil {
			return false
		}
		guest, err := o.Store.FindGuestCustomerByEmail(ctx, *req.Email)
		if err != nil || guest == nil {
			return false
		}
		upd.CustomerID = &guest.ID
		o.Logger.Info().
			Str("cart_id", cartID.String()).
			Str("customer_id", guest.ID.String()).
			Msg("re-associated cart with existing guest customer")
		return true
	case ConflictVariantPrice:
		cart, err := o.Store.GetCart(ctx, cartID)
		if err != nil {
			return false
		}
		// Only custom items lose their linkage: those still flagged plus
		// those captured in the snapshot before a detach unflagged them.
		// A catalog row without a price in the new region keeps its variant
		// and its validation error stands.
		snapped := make(map[uuid.UUID]bool, len(snaps))
		for _, snap := range snaps {
			snapped[snap.ID] = true
		}
		cleared := false
		for i := range cart.Items {
			item := &cart.Items[i]
			if item.VariantID == nil {
				continue
			}
			if !item.IsCustomPrice && !snapped[item.ID] {
				continue
			}
			patch := LineItemPatch{
				ClearVariantID: true,
				Metadata:       appendDetachedVariant(item.Metadata, *item.VariantID),
			}
			if err := o.Store.UpdateLineItem(ctx, cartID, item.ID, patch); err != nil {
				return false
			}
			cleared = true
		}
		return cleared
	default:
		return false
	}
}

// targetCurrency resolves the new region's currency. An unresolvable region
// or unsupported currency keeps the prior currency, taken from the snapshot.
func (o *Orchestrator) targetCurrency(ctx context.Context, regionID string, snaps []LineItemSnapshot) pricing.Currency {
	if region, err := o.Regions.Lookup(ctx, regionID); err == nil {
		if cur, ok := pricing.NormalizeCurrencyCode(region.CurrencyCode); ok {
			return cur
		}
	}
	for _, snap := range snaps {
		if cur, ok := pricing.NormalizeCurrencyCode(snap.CurrencyCode); ok {
			return cur
		}
	}
	return pricing.EUR
}

// appendDetachedVariant records a stripped variant id in metadata for
// traceability before the linkage is nulled.
func appendDetachedVariant(meta map[string]any, variantID string) map[string]any {
	m := CloneMetadata(meta)
	if m == nil {
		m = map[string]any{}
	}
	list, _ := m[MetaDetachedVariants].([]any)
	list = append(list, variantID)
	m[MetaDetachedVariants] = list
	return m
}

// incRetry guards the shared counter; domain metrics are only registered by
// the api entrypoint, not by tests.
func incRetry(reason string) {
	if obs.CartUpdateRetriesTotal != nil {
		obs.CartUpdateRetriesTotal.WithLabelValues(reason).Inc()
	}
}
