package designs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-atelier/internal/cart"
	"github.com/noah-isme/backend-atelier/internal/pricing"
)

// stubStore backs the design handlers with in-memory carts and doubles as
// the region lookup.
type stubStore struct {
	regions map[string]cart.RegionInfo
	carts   map[uuid.UUID]*cart.Cart
}

func newStubStore() *stubStore {
	return &stubStore{
		regions: map[string]cart.RegionInfo{
			"eu": {ID: "eu", CurrencyCode: "EUR", CountryCode: "de"},
			"pl": {ID: "pl", CurrencyCode: "PLN", CountryCode: "pl"},
		},
		carts: map[uuid.UUID]*cart.Cart{},
	}
}

func (s *stubStore) Lookup(_ context.Context, id string) (cart.RegionInfo, error) {
	info, ok := s.regions[id]
	if !ok {
		return cart.RegionInfo{}, cart.ErrRegionNotFound
	}
	return info, nil
}

func (s *stubStore) GetCart(_ context.Context, id uuid.UUID) (*cart.Cart, error) {
	c, ok := s.carts[id]
	if !ok {
		return nil, cart.ErrCartNotFound
	}
	return c, nil
}

func (s *stubStore) CreateCart(_ context.Context, regionID, salesChannelID string) (*cart.Cart, error) {
	region, ok := s.regions[regionID]
	if !ok {
		return nil, cart.ErrRegionNotFound
	}
	c := &cart.Cart{ID: uuid.New(), RegionID: region.ID, SalesChannelID: salesChannelID}
	s.carts[c.ID] = c
	return c, nil
}

func (s *stubStore) UpdateCart(context.Context, uuid.UUID, cart.CartUpdate) error {
	return fmt.Errorf("not implemented")
}

func (s *stubStore) AddLineItem(_ context.Context, item *cart.LineItem) error {
	c, ok := s.carts[item.CartID]
	if !ok {
		return cart.ErrCartNotFound
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	c.Items = append(c.Items, *item)
	return nil
}

func (s *stubStore) UpdateLineItem(context.Context, uuid.UUID, uuid.UUID, cart.LineItemPatch) error {
	return fmt.Errorf("not implemented")
}

func (s *stubStore) FindGuestCustomerByEmail(context.Context, string) (*cart.Customer, error) {
	return nil, nil
}

func newTestRouter(store *stubStore) *chi.Mux {
	h := &Handler{
		Service: &Service{
			Store:                store,
			Regions:              store,
			Calc:                 &pricing.Calculator{Rules: pricing.DefaultRuleTable(), FX: pricing.NewConverter(nil)},
			DefaultRegion:        "eu",
			SalesChannelID:       "web",
			PlaceholderVariantID: "var_custom_print",
			Logger:               zerolog.Nop(),
		},
		Validate: validator.New(),
	}
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	var payload map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	}
	return rr, payload
}

func TestConfigEndpoint(t *testing.T) {
	router := newTestRouter(newStubStore())
	rr, payload := doJSON(t, router, http.MethodGet, "/store/designs/config", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	cfg, ok := payload["config"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, 1.0, cfg["min_qty"])
	require.Equal(t, 10.0, cfg["max_qty"])
	require.Equal(t, "EUR", cfg["base_currency"])

	sizes, ok := cfg["sizes"].([]any)
	require.True(t, ok)
	require.Len(t, sizes, 5)
	first, ok := sizes[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "20x30", first["id"])
}

func TestPriceEndpointDefaultsToEUR(t *testing.T) {
	router := newTestRouter(newStubStore())
	rr, payload := doJSON(t, router, http.MethodPost, "/store/designs/price", map[string]any{
		"size": "40x60", "material": "canvas-gloss", "color": "white-edge", "qty": 2,
	})
	require.Equal(t, http.StatusOK, rr.Code)

	quote := payload["quote"].(map[string]any)
	require.Equal(t, "EUR", quote["currency"])
	require.Equal(t, 64.0, quote["unit_price"])
	require.Equal(t, 6400.0, quote["unit_price_minor"])
	require.Equal(t, 12800.0, quote["subtotal_minor"])
	require.Equal(t, 2.0, quote["qty"])
}

func TestPriceEndpointUsesCartRegionCurrency(t *testing.T) {
	store := newStubStore()
	router := newTestRouter(store)
	c, err := store.CreateCart(context.Background(), "pl", "web")
	require.NoError(t, err)

	rr, payload := doJSON(t, router, http.MethodPost, "/store/designs/price", map[string]any{
		"size": "40x60", "material": "canvas-gloss", "color": "white-edge", "qty": 2,
		"cart_id": c.ID.String(),
	})
	require.Equal(t, http.StatusOK, rr.Code)

	quote := payload["quote"].(map[string]any)
	require.Equal(t, "PLN", quote["currency"])
	require.Equal(t, 4.3, quote["fx_rate"])
	require.Equal(t, 275.2, quote["unit_price"]) // 64.00 EUR * 4.30, rounded once
	require.Equal(t, 27520.0, quote["unit_price_minor"])
	require.Equal(t, 55040.0, quote["subtotal_minor"])
}

func TestPriceEndpointUnknownSize(t *testing.T) {
	router := newTestRouter(newStubStore())
	rr, payload := doJSON(t, router, http.MethodPost, "/store/designs/price", map[string]any{
		"size": "13x37", "material": "canvas-matte", "color": "white-edge", "qty": 1,
	})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	errBody := payload["error"].(map[string]any)
	require.Equal(t, "invalid_selection", errBody["code"])
}

func TestPriceEndpointIncompatiblePair(t *testing.T) {
	router := newTestRouter(newStubStore())
	rr, payload := doJSON(t, router, http.MethodPost, "/store/designs/price", map[string]any{
		"size": "40x60", "material": "canvas-gloss", "color": "raw-edge", "qty": 1,
	})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	errBody := payload["error"].(map[string]any)
	require.Equal(t, "invalid_selection", errBody["code"])
}

func TestPriceEndpointMissingFields(t *testing.T) {
	router := newTestRouter(newStubStore())
	rr, payload := doJSON(t, router, http.MethodPost, "/store/designs/price", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	errBody := payload["error"].(map[string]any)
	require.Equal(t, "validation_failed", errBody["code"])
}

func TestAddEndpointCreatesCart(t *testing.T) {
	store := newStubStore()
	router := newTestRouter(store)
	rr, payload := doJSON(t, router, http.MethodPost, "/store/designs/add", map[string]any{
		"size": "30x40", "material": "fine-art-paper", "color": "black-edge", "qty": 3,
		"artwork_key": "uploads/abc123.png",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	body := payload["cart"].(map[string]any)
	require.Equal(t, "eu", body["region_id"])
	cartID, err := uuid.Parse(body["id"].(string))
	require.NoError(t, err)

	stored := store.carts[cartID]
	require.NotNil(t, stored)
	require.Len(t, stored.Items, 1)
	item := stored.Items[0]
	require.True(t, item.IsCustomPrice)
	require.Equal(t, 3, item.Quantity)
	require.Equal(t, int64(5800), item.UnitPrice) // 49 + 9 + 0 EUR
	require.Equal(t, "EUR", item.CurrencyCode)
	require.NotNil(t, item.VariantID)
	require.Equal(t, "var_custom_print", *item.VariantID)
	require.Equal(t, "uploads/abc123.png", item.Metadata[cart.MetaArtworkKey])

	breakdown := item.Metadata[cart.MetaBreakdown].(map[string]any)
	require.Equal(t, 58.0, breakdown["total_eur"])
}

func TestAddEndpointUnknownCartCreatesFresh(t *testing.T) {
	store := newStubStore()
	router := newTestRouter(store)
	staleID := uuid.NewString()
	rr, payload := doJSON(t, router, http.MethodPost, "/store/designs/add", map[string]any{
		"size": "30x40", "material": "canvas-matte", "color": "white-edge", "qty": 1,
		"cart_id": staleID,
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	body := payload["cart"].(map[string]any)
	require.NotEqual(t, staleID, body["id"])
	require.Equal(t, "eu", body["region_id"])
	require.Len(t, body["items"].([]any), 1)
}

func TestAddEndpointInvalidSelection(t *testing.T) {
	router := newTestRouter(newStubStore())
	rr, payload := doJSON(t, router, http.MethodPost, "/store/designs/add", map[string]any{
		"size": "30x40", "material": "aluminum-dibond", "color": "mirror-edge", "qty": 1,
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	errBody := payload["error"].(map[string]any)
	require.Equal(t, "invalid_selection", errBody["code"])
}
