package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Quantity bounds applied to cart line item updates. The design endpoints
// clamp tighter; see pricing.RuleTable.
const (
	minUpdateQty = 1
	maxUpdateQty = 99
)

// PgStore is the Postgres-backed cart store. It stands in for the commerce
// platform's cart module, including the region-change behavior this core has
// to defend against: per-region variant price validation and shipping address
// resets.
type PgStore struct {
	Pool    *pgxpool.Pool
	Regions RegionLookup
	Now     func() time.Time
}

func (s *PgStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// GetCart loads a cart with its line items.
func (s *PgStore) GetCart(ctx context.Context, id uuid.UUID) (*Cart, error) {
	if s == nil || s.Pool == nil {
		return nil, errors.New("cart store not configured")
	}
	return getCart(ctx, s.Pool, id)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func getCart(ctx context.Context, q querier, id uuid.UUID) (*Cart, error) {
	var (
		c           Cart
		email       *string
		addressRaw  []byte
		customerID  *uuid.UUID
		salesChanID *string
	)
	err := q.QueryRow(ctx, `
		SELECT id, region_id, email, customer_id, sales_channel_id, shipping_address, created_at, updated_at
		FROM carts WHERE id = $1`, id).
		Scan(&c.ID, &c.RegionID, &email, &customerID, &salesChanID, &addressRaw, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if email != nil {
		c.Email = *email
	}
	c.CustomerID = customerID
	if salesChanID != nil {
		c.SalesChannelID = *salesChanID
	}
	if len(addressRaw) > 0 {
		var addr Address
		if err := json.Unmarshal(addressRaw, &addr); err == nil {
			c.ShippingAddress = &addr
		}
	}

	rows, err := q.Query(ctx, `
		SELECT id, title, product_title, quantity, unit_price, currency_code,
		       is_custom_price, variant_id, sales_channel_id, metadata, created_at, updated_at
		FROM cart_line_items WHERE cart_id = $1 ORDER BY created_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("load cart items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		item := LineItem{CartID: c.ID}
		var (
			productTitle *string
			variantID    *string
			salesChannel *string
			metaRaw      []byte
		)
		if err := rows.Scan(&item.ID, &item.Title, &productTitle, &item.Quantity, &item.UnitPrice,
			&item.CurrencyCode, &item.IsCustomPrice, &variantID, &salesChannel, &metaRaw,
			&item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		if productTitle != nil {
			item.ProductTitle = *productTitle
		}
		item.VariantID = variantID
		if salesChannel != nil {
			item.SalesChannelID = *salesChannel
		}
		if len(metaRaw) > 0 {
			_ = json.Unmarshal(metaRaw, &item.Metadata)
		}
		c.Items = append(c.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}
	return &c, nil
}

// CreateCart inserts an empty cart bound to a region.
func (s *PgStore) CreateCart(ctx context.Context, regionID, salesChannelID string) (*Cart, error) {
	if s == nil || s.Pool == nil {
		return nil, errors.New("cart store not configured")
	}
	now := s.now()
	c := &Cart{
		ID:             uuid.New(),
		RegionID:       regionID,
		SalesChannelID: salesChannelID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO carts (id, region_id, sales_channel_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)`,
		c.ID, c.RegionID, nullable(c.SalesChannelID), now)
	if err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	return c, nil
}

// AddLineItem appends one line item to a cart.
func (s *PgStore) AddLineItem(ctx context.Context, item *LineItem) error {
	if s == nil || s.Pool == nil {
		return errors.New("cart store not configured")
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	now := s.now()
	item.CreatedAt = now
	item.UpdatedAt = now
	metaRaw, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO cart_line_items
			(id, cart_id, title, product_title, quantity, unit_price, currency_code,
			 is_custom_price, variant_id, sales_channel_id, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		item.ID, item.CartID, item.Title, nullable(item.ProductTitle), item.Quantity,
		item.UnitPrice, item.CurrencyCode, item.IsCustomPrice, item.VariantID,
		nullable(item.SalesChannelID), metaRaw, now)
	if err != nil {
		return fmt.Errorf("insert line item: %w", err)
	}
	return nil
}

// UpdateLineItem applies a partial patch to one line item.
func (s *PgStore) UpdateLineItem(ctx context.Context, cartID, itemID uuid.UUID, patch LineItemPatch) error {
	if s == nil || s.Pool == nil {
		return errors.New("cart store not configured")
	}
	sets := []string{"updated_at = $3"}
	args := []any{itemID, cartID, s.now()}
	add := func(expr string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}
	if patch.Quantity != nil {
		add("quantity = $%d", clampQty(*patch.Quantity))
	}
	if patch.UnitPrice != nil {
		add("unit_price = $%d", *patch.UnitPrice)
	}
	if patch.CurrencyCode != nil {
		add("currency_code = $%d", *patch.CurrencyCode)
	}
	if patch.IsCustomPrice != nil {
		add("is_custom_price = $%d", *patch.IsCustomPrice)
	}
	if patch.ClearVariantID {
		sets = append(sets, "variant_id = NULL")
	} else if patch.VariantID != nil {
		add("variant_id = $%d", *patch.VariantID)
	}
	if patch.Metadata != nil {
		raw, err := json.Marshal(patch.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		add("metadata = $%d", raw)
	}
	query := fmt.Sprintf(`UPDATE cart_line_items SET %s WHERE id = $1 AND cart_id = $2`,
		strings.Join(sets, ", "))
	tag, err := s.Pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update line item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("line item %s: %w", itemID, ErrCartNotFound)
	}
	return nil
}

// FindGuestCustomerByEmail returns the guest (non-account) customer owning an
// email, or nil when none exists.
func (s *PgStore) FindGuestCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	if s == nil || s.Pool == nil {
		return nil, errors.New("cart store not configured")
	}
	var c Customer
	err := s.Pool.QueryRow(ctx, `
		SELECT id, email, has_account FROM customers
		WHERE lower(email) = lower($1) AND has_account = false`, strings.TrimSpace(email)).
		Scan(&c.ID, &c.Email, &c.HasAccount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find guest customer: %w", err)
	}
	return &c, nil
}

// UpdateCart applies a partial cart mutation inside one transaction,
// reproducing the platform's semantics:
//
//   - setting a new email registers a guest customer and fails with an
//     "already exists" message when that identity is taken;
//   - changing the region re-validates every variant-linked line item against
//     the new region's variant prices and resets the shipping address down to
//     the region-owned fields.
func (s *PgStore) UpdateCart(ctx context.Context, id uuid.UUID, upd CartUpdate) error {
	if s == nil || s.Pool == nil {
		return errors.New("cart store not configured")
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	cart, err := getCart(ctx, tx, id)
	if err != nil {
		return err
	}
	now := s.now()

	if upd.Email != nil && !strings.EqualFold(strings.TrimSpace(*upd.Email), cart.Email) {
		email := strings.TrimSpace(*upd.Email)
		customerID := upd.CustomerID
		if customerID == nil {
			newID := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO customers (id, email, has_account, created_at)
				VALUES ($1, $2, false, $3)`, newID, email, now)
			if err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "23505" {
					return fmt.Errorf("guest customer with email %s already exists", email)
				}
				return fmt.Errorf("register guest customer: %w", err)
			}
			customerID = &newID
		}
		if _, err := tx.Exec(ctx, `
			UPDATE carts SET email = $2, customer_id = $3, updated_at = $4 WHERE id = $1`,
			id, email, customerID, now); err != nil {
			return fmt.Errorf("update cart email: %w", err)
		}
	}

	if upd.RegionID != nil && *upd.RegionID != cart.RegionID {
		region, err := s.Regions.Lookup(ctx, *upd.RegionID)
		if err != nil {
			return fmt.Errorf("region %s: %w", *upd.RegionID, ErrRegionNotFound)
		}
		for _, item := range cart.Items {
			if item.VariantID == nil {
				continue
			}
			var amount int64
			err := tx.QueryRow(ctx, `
				SELECT amount FROM variant_prices WHERE variant_id = $1 AND region_id = $2`,
				*item.VariantID, region.ID).Scan(&amount)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("variant %s does not have a price in region %s", *item.VariantID, region.ID)
				}
				return fmt.Errorf("validate variant price: %w", err)
			}
			if _, err := tx.Exec(ctx, `
				UPDATE cart_line_items SET unit_price = $3, currency_code = $4, updated_at = $5
				WHERE id = $1 AND cart_id = $2`,
				item.ID, id, amount, region.CurrencyCode, now); err != nil {
				return fmt.Errorf("reprice variant item: %w", err)
			}
		}
		if cart.ShippingAddress != nil {
			// The platform keeps only the region-owned address fields across a
			// region change; the reconciler merges the rest back afterwards.
			reset := &Address{CountryCode: region.CountryCode}
			raw, _ := json.Marshal(reset)
			if _, err := tx.Exec(ctx, `
				UPDATE carts SET shipping_address = $2, updated_at = $3 WHERE id = $1`,
				id, raw, now); err != nil {
				return fmt.Errorf("reset shipping address: %w", err)
			}
		}
		if _, err := tx.Exec(ctx, `
			UPDATE carts SET region_id = $2, updated_at = $3 WHERE id = $1`,
			id, region.ID, now); err != nil {
			return fmt.Errorf("update cart region: %w", err)
		}
	}

	for _, change := range upd.Items {
		if _, err := tx.Exec(ctx, `
			UPDATE cart_line_items SET quantity = $3, updated_at = $4
			WHERE id = $1 AND cart_id = $2`,
			change.LineItemID, id, clampQty(change.Quantity), now); err != nil {
			return fmt.Errorf("update item quantity: %w", err)
		}
	}

	if upd.ShippingAddress != nil {
		raw, err := json.Marshal(upd.ShippingAddress)
		if err != nil {
			return fmt.Errorf("marshal shipping address: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE carts SET shipping_address = $2, updated_at = $3 WHERE id = $1`,
			id, raw, now); err != nil {
			return fmt.Errorf("update shipping address: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE carts SET updated_at = $2 WHERE id = $1`, id, now); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return tx.Commit(ctx)
}

func clampQty(qty int) int {
	if qty < minUpdateQty {
		return minUpdateQty
	}
	if qty > maxUpdateQty {
		return maxUpdateQty
	}
	return qty
}

func nullable(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
