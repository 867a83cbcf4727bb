package region

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-atelier/internal/cart"
)

// Region is one selling region with its settlement currency and country.
type Region struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CurrencyCode string `json:"currency_code"`
	CountryCode  string `json:"country_code"`
}

// Service resolves regions from Postgres with a Redis cache-aside. Regions
// change rarely, so cache staleness within the TTL is acceptable.
type Service struct {
	Pool   *pgxpool.Pool
	Cache  *Cache
	Logger zerolog.Logger
}

func cacheKey(id string) string { return "region:" + id }

// Get returns one region by id, cache first.
func (s *Service) Get(ctx context.Context, id string) (Region, error) {
	var region Region
	hit, err := s.Cache.GetJSON(ctx, cacheKey(id), &region)
	if err != nil {
		s.Logger.Warn().Err(err).Str("region_id", id).Msg("region cache read failed")
	}
	if hit {
		return region, nil
	}
	if s.Pool == nil {
		return Region{}, cart.ErrRegionNotFound
	}
	row := s.Pool.QueryRow(ctx,
		`SELECT id, name, currency_code, country_code FROM regions WHERE id = $1`, id)
	if err := row.Scan(&region.ID, &region.Name, &region.CurrencyCode, &region.CountryCode); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Region{}, cart.ErrRegionNotFound
		}
		return Region{}, err
	}
	if err := s.Cache.SetJSON(ctx, cacheKey(id), region); err != nil {
		s.Logger.Warn().Err(err).Str("region_id", id).Msg("region cache write failed")
	}
	return region, nil
}

// List returns all regions ordered by id.
func (s *Service) List(ctx context.Context) ([]Region, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, name, currency_code, country_code FROM regions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Region
	for rows.Next() {
		var r Region
		if err := rows.Scan(&r.ID, &r.Name, &r.CurrencyCode, &r.CountryCode); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Lookup implements cart.RegionLookup.
func (s *Service) Lookup(ctx context.Context, id string) (cart.RegionInfo, error) {
	region, err := s.Get(ctx, id)
	if err != nil {
		return cart.RegionInfo{}, err
	}
	return cart.RegionInfo{
		ID:           region.ID,
		CurrencyCode: region.CurrencyCode,
		CountryCode:  region.CountryCode,
	}, nil
}
