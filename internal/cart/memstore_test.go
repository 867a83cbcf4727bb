package cart_test

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-atelier/internal/cart"
)

// memRegions is a map-backed RegionLookup for tests.
type memRegions map[string]cart.RegionInfo

func (m memRegions) Lookup(_ context.Context, id string) (cart.RegionInfo, error) {
	info, ok := m[id]
	if !ok {
		return cart.RegionInfo{}, cart.ErrRegionNotFound
	}
	return info, nil
}

// memStore is an in-memory Store that mirrors the platform's mutation
// semantics: guest email uniqueness, per-region variant price validation and
// the shipping address reset on region change. Scripted errors let tests
// force terminal failures on specific UpdateCart calls.
type memStore struct {
	mu            sync.Mutex
	carts         map[uuid.UUID]*cart.Cart
	regions       memRegions
	customers     map[string]cart.Customer
	variantPrices map[string]map[string]int64

	scriptedErrs    []error
	updateCalls     int
	lineItemPatches int
}

func newMemStore() *memStore {
	return &memStore{
		carts:         map[uuid.UUID]*cart.Cart{},
		regions:       memRegions{},
		customers:     map[string]cart.Customer{},
		variantPrices: map[string]map[string]int64{},
	}
}

func (s *memStore) addRegion(id, currency, country string) {
	s.regions[id] = cart.RegionInfo{ID: id, CurrencyCode: currency, CountryCode: country}
}

func (s *memStore) addVariantPrice(regionID, variantID string, minor int64) {
	if s.variantPrices[regionID] == nil {
		s.variantPrices[regionID] = map[string]int64{}
	}
	s.variantPrices[regionID][variantID] = minor
}

func (s *memStore) addCustomer(email string, hasAccount bool) cart.Customer {
	c := cart.Customer{ID: uuid.New(), Email: email, HasAccount: hasAccount}
	s.customers[strings.ToLower(email)] = c
	return c
}

func (s *memStore) put(c *cart.Cart) {
	s.carts[c.ID] = cloneCart(c)
}

func (s *memStore) GetCart(_ context.Context, id uuid.UUID) (*cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[id]
	if !ok {
		return nil, cart.ErrCartNotFound
	}
	return cloneCart(c), nil
}

func (s *memStore) CreateCart(_ context.Context, regionID, salesChannelID string) (*cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	region, ok := s.regions[regionID]
	if !ok {
		return nil, cart.ErrRegionNotFound
	}
	c := &cart.Cart{
		ID:              uuid.New(),
		RegionID:        region.ID,
		SalesChannelID:  salesChannelID,
		ShippingAddress: &cart.Address{CountryCode: region.CountryCode},
	}
	s.carts[c.ID] = cloneCart(c)
	return cloneCart(c), nil
}

func (s *memStore) AddLineItem(_ context.Context, item *cart.LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[item.CartID]
	if !ok {
		return cart.ErrCartNotFound
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	c.Items = append(c.Items, *cloneItem(item))
	return nil
}

func (s *memStore) UpdateLineItem(_ context.Context, cartID, itemID uuid.UUID, patch cart.LineItemPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[cartID]
	if !ok {
		return cart.ErrCartNotFound
	}
	item := c.Item(itemID)
	if item == nil {
		return cart.ErrCartNotFound
	}
	s.lineItemPatches++
	if patch.Quantity != nil {
		item.Quantity = *patch.Quantity
	}
	if patch.UnitPrice != nil {
		item.UnitPrice = *patch.UnitPrice
	}
	if patch.CurrencyCode != nil {
		item.CurrencyCode = *patch.CurrencyCode
	}
	if patch.IsCustomPrice != nil {
		item.IsCustomPrice = *patch.IsCustomPrice
	}
	if patch.ClearVariantID {
		item.VariantID = nil
	} else if patch.VariantID != nil {
		v := *patch.VariantID
		item.VariantID = &v
	}
	if patch.Metadata != nil {
		item.Metadata = cart.CloneMetadata(patch.Metadata)
	}
	return nil
}

func (s *memStore) FindGuestCustomerByEmail(_ context.Context, email string) (*cart.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[strings.ToLower(email)]
	if !ok || c.HasAccount {
		return nil, nil
	}
	out := c
	return &out, nil
}

func (s *memStore) UpdateCart(_ context.Context, id uuid.UUID, upd cart.CartUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	if len(s.scriptedErrs) > 0 {
		err := s.scriptedErrs[0]
		s.scriptedErrs = s.scriptedErrs[1:]
		if err != nil {
			return err
		}
	}
	c, ok := s.carts[id]
	if !ok {
		return cart.ErrCartNotFound
	}
	if upd.Email != nil {
		switch {
		case upd.CustomerID != nil:
			cid := *upd.CustomerID
			c.CustomerID = &cid
			c.Email = *upd.Email
		default:
			key := strings.ToLower(*upd.Email)
			if _, exists := s.customers[key]; exists {
				return fmt.Errorf("guest customer with email %s already exists", *upd.Email)
			}
			cust := cart.Customer{ID: uuid.New(), Email: *upd.Email}
			s.customers[key] = cust
			cid := cust.ID
			c.CustomerID = &cid
			c.Email = *upd.Email
		}
	}
	if upd.RegionID != nil && *upd.RegionID != c.RegionID {
		region, ok := s.regions[*upd.RegionID]
		if !ok {
			return cart.ErrRegionNotFound
		}
		for i := range c.Items {
			item := &c.Items[i]
			if item.VariantID == nil {
				continue
			}
			price, ok := s.variantPrices[region.ID][*item.VariantID]
			if !ok {
				return fmt.Errorf("variant %s does not have a price in region %s", *item.VariantID, region.ID)
			}
			item.UnitPrice = price
			item.CurrencyCode = region.CurrencyCode
		}
		c.RegionID = region.ID
		c.ShippingAddress = &cart.Address{CountryCode: region.CountryCode}
	}
	for _, qc := range upd.Items {
		item := c.Item(qc.LineItemID)
		if item == nil {
			return cart.ErrCartNotFound
		}
		qty := qc.Quantity
		if qty < 1 {
			qty = 1
		}
		if qty > 99 {
			qty = 99
		}
		item.Quantity = qty
	}
	if upd.ShippingAddress != nil {
		a := *upd.ShippingAddress
		c.ShippingAddress = &a
	}
	return nil
}

func cloneCart(c *cart.Cart) *cart.Cart {
	out := *c
	if c.CustomerID != nil {
		cid := *c.CustomerID
		out.CustomerID = &cid
	}
	if c.ShippingAddress != nil {
		addr := *c.ShippingAddress
		out.ShippingAddress = &addr
	}
	out.Items = make([]cart.LineItem, len(c.Items))
	for i := range c.Items {
		out.Items[i] = *cloneItem(&c.Items[i])
	}
	return &out
}

func cloneItem(item *cart.LineItem) *cart.LineItem {
	out := *item
	if item.VariantID != nil {
		v := *item.VariantID
		out.VariantID = &v
	}
	out.Metadata = cart.CloneMetadata(item.Metadata)
	return &out
}
