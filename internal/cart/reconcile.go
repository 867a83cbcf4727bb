package cart

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-atelier/internal/obs"
	"github.com/noah-isme/backend-atelier/internal/pricing"
)

// Reconciler re-associates custom-priced line items with a cart's currency
// after a region change. The platform's own region-change machinery validates
// every variant-linked item against catalog prices in the new region; custom
// items have no catalog price anywhere, so they are detached beforehand and
// rebuilt from their EUR breakdown afterwards.
type Reconciler struct {
	Store   Store
	Manager *SnapshotManager
	FX      *pricing.Converter
	Logger  zerolog.Logger
}

// PrepareCustomItemsForRegionChange detaches every custom line item before
// the underlying mutation runs: the custom-price flag comes off and the
// variant linkage is nulled (backed up into metadata) so the platform's
// per-region price validation skips the item entirely.
func (r *Reconciler) PrepareCustomItemsForRegionChange(ctx context.Context, cart *Cart) error {
	for _, item := range cart.CustomItems() {
		meta := CloneMetadata(item.Metadata)
		if meta == nil {
			meta = map[string]any{}
		}
		if item.VariantID != nil {
			meta[MetaVariantBackup] = *item.VariantID
		}
		patch := LineItemPatch{
			IsCustomPrice:  boolPtr(false),
			ClearVariantID: true,
			Metadata:       meta,
		}
		if err := r.Store.UpdateLineItem(ctx, cart.ID, item.ID, patch); err != nil {
			return err
		}
	}
	return nil
}

// Reconcile runs the post-mutation passes in order, refetching the cart
// before each so every step sees the freshest state: restore custom items in
// the new currency, reprice stragglers, then merge the shipping address back.
// Failures inside the passes are best-effort and never surface; the primary
// mutation already succeeded.
func (r *Reconciler) Reconcile(ctx context.Context, cartID uuid.UUID, snaps []LineItemSnapshot, addr *Address, cur pricing.Currency) (*Cart, error) {
	cart, err := r.Store.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	recovered := r.restoreCustomItemsForRegionChange(ctx, cart, snaps, cur)
	if recovered == 0 && len(snaps) > 0 {
		// Nothing could be rebuilt from a breakdown; put the items back as
		// they were rather than dropping them. The price is numerically wrong
		// in the new currency until a later reprice can fix it.
		r.Manager.Restore(ctx, cartID, snaps)
		incReconcile("fallback")
	} else if recovered > 0 {
		incReconcile("restored")
	}

	cart, err = r.Store.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if n := r.repriceCustomItemsForRegion(ctx, cart, cur); n > 0 {
		incReconcile("repriced")
	}

	cart, err = r.Store.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	r.restoreShippingAddress(ctx, cart, addr)

	return r.Store.GetCart(ctx, cartID)
}

// restoreCustomItemsForRegionChange rebuilds each snapshotted custom item in
// the new region's currency from its EUR breakdown. When the breakdown is
// missing the EUR total is approximated from the old unit price, but only if
// the old currency already was EUR; there is no sound reconstruction for
// chained non-EUR region changes without a breakdown.
func (r *Reconciler) restoreCustomItemsForRegionChange(ctx context.Context, cart *Cart, snaps []LineItemSnapshot, cur pricing.Currency) int {
	recovered := 0
	rate := r.FX.Rate(cur)
	for _, snap := range snaps {
		if !snap.IsCustomPrice {
			continue
		}
		item := cart.Item(snap.ID)
		if item == nil {
			continue
		}
		totalEUR, ok := BreakdownTotalEUR(snap.Metadata)
		if !ok {
			if prior, normOK := pricing.NormalizeCurrencyCode(snap.CurrencyCode); normOK && prior == pricing.EUR && snap.UnitPrice != nil {
				totalEUR = pricing.MinorToMajor(*snap.UnitPrice, pricing.EUR)
				ok = true
			}
		}
		if !ok {
			continue
		}
		unitMinor := r.FX.EURToMinor(totalEUR, cur)
		if itemMatchesPrice(item, cur, rate, unitMinor) {
			recovered++
			continue
		}
		meta := CloneMetadata(snap.Metadata)
		if meta == nil {
			meta = map[string]any{}
		}
		meta[MetaCurrency] = string(cur)
		meta[MetaFxRate] = rate
		if snap.VariantID != nil {
			meta[MetaVariantBackup] = *snap.VariantID
		}
		patch := LineItemPatch{
			UnitPrice:     int64Ptr(unitMinor),
			CurrencyCode:  strPtr(string(cur)),
			IsCustomPrice: boolPtr(true),
			Metadata:      meta,
		}
		if err := r.Store.UpdateLineItem(ctx, cart.ID, snap.ID, patch); err != nil {
			r.Logger.Warn().
				Err(err).
				Str("cart_id", cart.ID.String()).
				Str("line_item_id", snap.ID.String()).
				Msg("restore custom item after region change failed")
			incReconcile("restore_failed")
			continue
		}
		recovered++
	}
	return recovered
}

// repriceCustomItemsForRegion is a defensive pass over the cart's current
// items: any custom item whose stored currency or fx rate disagrees with the
// region's is recomputed from its own metadata breakdown. This catches items
// reattached with stale currency tags and items touched by a second mutation
// attempt.
func (r *Reconciler) repriceCustomItemsForRegion(ctx context.Context, cart *Cart, cur pricing.Currency) int {
	repriced := 0
	rate := r.FX.Rate(cur)
	for _, item := range cart.CustomItems() {
		totalEUR, ok := BreakdownTotalEUR(item.Metadata)
		if !ok {
			continue
		}
		unitMinor := r.FX.EURToMinor(totalEUR, cur)
		if itemMatchesPrice(item, cur, rate, unitMinor) {
			continue
		}
		meta := CloneMetadata(item.Metadata)
		meta[MetaCurrency] = string(cur)
		meta[MetaFxRate] = rate
		patch := LineItemPatch{
			UnitPrice:    int64Ptr(unitMinor),
			CurrencyCode: strPtr(string(cur)),
			Metadata:     meta,
		}
		if err := r.Store.UpdateLineItem(ctx, cart.ID, item.ID, patch); err != nil {
			r.Logger.Warn().
				Err(err).
				Str("cart_id", cart.ID.String()).
				Str("line_item_id", item.ID.String()).
				Msg("reprice custom item failed")
			incReconcile("restore_failed")
			continue
		}
		repriced++
	}
	return repriced
}

// restoreShippingAddress merges the pre-change snapshot into the post-change
// address. Country and province stay untouched: those belong to the new
// region. The merge only fills fields the region change blanked and persists
// only when it changes anything.
func (r *Reconciler) restoreShippingAddress(ctx context.Context, cart *Cart, snap *Address) bool {
	if snap == nil {
		return false
	}
	current := Address{}
	if cart.ShippingAddress != nil {
		current = *cart.ShippingAddress
	}
	merged := current
	fillIfEmpty(&merged.FirstName, snap.FirstName)
	fillIfEmpty(&merged.LastName, snap.LastName)
	fillIfEmpty(&merged.Company, snap.Company)
	fillIfEmpty(&merged.Address1, snap.Address1)
	fillIfEmpty(&merged.Address2, snap.Address2)
	fillIfEmpty(&merged.City, snap.City)
	fillIfEmpty(&merged.PostalCode, snap.PostalCode)
	fillIfEmpty(&merged.Phone, snap.Phone)
	if merged == current {
		return false
	}
	if err := r.Store.UpdateCart(ctx, cart.ID, CartUpdate{ShippingAddress: &merged}); err != nil {
		r.Logger.Warn().
			Err(err).
			Str("cart_id", cart.ID.String()).
			Msg("shipping address restore failed")
		incReconcile("restore_failed")
		return false
	}
	incReconcile("address_restored")
	return true
}

func itemMatchesPrice(item *LineItem, cur pricing.Currency, rate float64, unitMinor int64) bool {
	if item.UnitPrice != unitMinor || item.CurrencyCode != string(cur) || !item.IsCustomPrice {
		return false
	}
	if MetadataCurrency(item.Metadata) != string(cur) {
		return false
	}
	metaRate, ok := MetadataFxRate(item.Metadata)
	return ok && metaRate == rate
}

func fillIfEmpty(dst *string, value string) {
	if *dst == "" && value != "" {
		*dst = value
	}
}

// incReconcile guards the shared counter; domain metrics are only registered
// by the api entrypoint, not by tests.
func incReconcile(outcome string) {
	if obs.CartReconcileTotal != nil {
		obs.CartReconcileTotal.WithLabelValues(outcome).Inc()
	}
}
