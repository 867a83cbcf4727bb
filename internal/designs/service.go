package designs

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-atelier/internal/cart"
	"github.com/noah-isme/backend-atelier/internal/common"
	"github.com/noah-isme/backend-atelier/internal/obs"
	"github.com/noah-isme/backend-atelier/internal/pricing"
)

// PriceRequest quotes one selection. The currency comes from the cart's
// region when a cart id is given, from the explicit currency field otherwise,
// and falls back to EUR.
type PriceRequest struct {
	pricing.Selection
	CartID   *uuid.UUID `json:"cart_id"`
	Currency string     `json:"currency"`
}

// AddRequest prices a selection and adds it to a cart as a custom-priced
// line item. Without a cart id a fresh cart is created in the default region.
type AddRequest struct {
	pricing.Selection
	CartID     *uuid.UUID `json:"cart_id"`
	ArtworkKey string     `json:"artwork_key"`
	Title      string     `json:"title"`
}

// ConfigResponse is the public render of the rule table.
type ConfigResponse struct {
	Sizes        []pricing.Option `json:"sizes"`
	Materials    []pricing.Option `json:"materials"`
	Colors       []pricing.Option `json:"colors"`
	MinQty       int              `json:"min_qty"`
	MaxQty       int              `json:"max_qty"`
	BaseCurrency string           `json:"base_currency"`
}

// Service prices custom designs and feeds them into carts.
type Service struct {
	Store          cart.Store
	Regions        cart.RegionLookup
	Calc           *pricing.Calculator
	DefaultRegion  string
	SalesChannelID string
	// PlaceholderVariantID, when set, links new custom items to the shared
	// custom-product variant so they render like catalog items downstream.
	PlaceholderVariantID string
	Logger               zerolog.Logger
}

// Config renders the current rule table.
func (s *Service) Config() ConfigResponse {
	return ConfigResponse{
		Sizes:        s.Calc.Rules.SizeOptions(),
		Materials:    s.Calc.Rules.MaterialOptions(),
		Colors:       s.Calc.Rules.ColorOptions(),
		MinQty:       s.Calc.Rules.MinQty,
		MaxQty:       s.Calc.Rules.MaxQty,
		BaseCurrency: string(pricing.EUR),
	}
}

// Price validates and quotes one selection.
func (s *Service) Price(ctx context.Context, req PriceRequest) (pricing.Quote, error) {
	target, err := s.resolveCurrency(ctx, req.CartID, req.Currency)
	if err != nil {
		return pricing.Quote{}, err
	}
	if err := s.Calc.ValidateSelections(req.Selection); err != nil {
		return pricing.Quote{}, err
	}
	quote, err := s.Calc.CalculatePrice(req.Selection, target)
	if err != nil {
		return pricing.Quote{}, err
	}
	incQuote(quote.Currency)
	return quote, nil
}

// AddToCart quotes the selection in the cart's region currency and appends it
// as a custom-priced line item. The EUR breakdown travels in metadata so the
// price can be rebuilt after any later region change.
func (s *Service) AddToCart(ctx context.Context, req AddRequest) (*cart.Cart, error) {
	if err := s.Calc.ValidateSelections(req.Selection); err != nil {
		return nil, err
	}
	c, err := s.resolveCart(ctx, req.CartID)
	if err != nil {
		return nil, err
	}
	target, err := s.currencyForRegion(ctx, c.RegionID)
	if err != nil {
		return nil, err
	}
	quote, err := s.Calc.CalculatePrice(req.Selection, target)
	if err != nil {
		return nil, err
	}
	incQuote(quote.Currency)

	title := req.Title
	if title == "" {
		title = fmt.Sprintf("Custom print %s %s %s", req.Size, req.Material, req.Color)
	}
	item := &cart.LineItem{
		CartID:         c.ID,
		Title:          title,
		ProductTitle:   "Custom print",
		Quantity:       quote.Qty,
		UnitPrice:      quote.UnitPriceMinor,
		CurrencyCode:   quote.Currency,
		IsCustomPrice:  true,
		SalesChannelID: c.SalesChannelID,
		Metadata:       itemMetadata(req, quote),
	}
	if s.PlaceholderVariantID != "" {
		v := s.PlaceholderVariantID
		item.VariantID = &v
	}
	if err := s.Store.AddLineItem(ctx, item); err != nil {
		return nil, common.NewAppError("line_item_insert_failed", "could not add design to cart",
			http.StatusInternalServerError, err)
	}
	return s.Store.GetCart(ctx, c.ID)
}

// resolveCart loads the given cart, falling back to a fresh guest cart in the
// default region when no id is given or the id no longer resolves (stale
// storefront sessions).
func (s *Service) resolveCart(ctx context.Context, cartID *uuid.UUID) (*cart.Cart, error) {
	if cartID != nil {
		c, err := s.Store.GetCart(ctx, *cartID)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, cart.ErrCartNotFound) {
			return nil, err
		}
	}
	c, err := s.Store.CreateCart(ctx, s.DefaultRegion, s.SalesChannelID)
	if err != nil {
		return nil, err
	}
	s.Logger.Info().Str("cart_id", c.ID.String()).Str("region_id", c.RegionID).Msg("created cart for design")
	return c, nil
}

func (s *Service) resolveCurrency(ctx context.Context, cartID *uuid.UUID, explicit string) (pricing.Currency, error) {
	if cartID != nil {
		c, err := s.Store.GetCart(ctx, *cartID)
		if err != nil {
			return "", err
		}
		return s.currencyForRegion(ctx, c.RegionID)
	}
	if cur, ok := pricing.NormalizeCurrencyCode(explicit); ok {
		return cur, nil
	}
	return pricing.EUR, nil
}

// currencyForRegion maps a region to a supported currency; an unknown region
// currency quotes in EUR rather than failing the request.
func (s *Service) currencyForRegion(ctx context.Context, regionID string) (pricing.Currency, error) {
	region, err := s.Regions.Lookup(ctx, regionID)
	if err != nil {
		return "", err
	}
	if cur, ok := pricing.NormalizeCurrencyCode(region.CurrencyCode); ok {
		return cur, nil
	}
	return pricing.EUR, nil
}

func itemMetadata(req AddRequest, quote pricing.Quote) map[string]any {
	meta := map[string]any{
		cart.MetaBreakdown: map[string]any{
			"base_eur":     quote.Breakdown.BaseEUR,
			"material_eur": quote.Breakdown.MaterialEUR,
			"color_eur":    quote.Breakdown.ColorEUR,
			"total_eur":    quote.Breakdown.TotalEUR,
		},
		cart.MetaCurrency: quote.Currency,
		cart.MetaFxRate:   quote.FxRate,
		cart.MetaSize:     req.Size,
		cart.MetaMaterial: req.Material,
		cart.MetaColor:    req.Color,
	}
	if req.ArtworkKey != "" {
		meta[cart.MetaArtworkKey] = req.ArtworkKey
	}
	return meta
}

func incQuote(currency string) {
	if obs.PriceQuotesTotal != nil {
		obs.PriceQuotesTotal.WithLabelValues(currency).Inc()
	}
}
