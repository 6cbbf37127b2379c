// Package catalog serves vendor, item and tax-table lookups for the order form,
// caching the slow-moving backend tables in Redis.
package catalog

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/purchasing/internal/backend"
	"github.com/odyssey-erp/purchasing/internal/pricing"
)

// Source is the subset of the backend client the catalog reads from.
type Source interface {
	GetVendor(ctx context.Context, id string) (backend.Vendor, error)
	ListItems(ctx context.Context) ([]backend.Item, error)
	ListTaxRates(ctx context.Context) ([]pricing.CustomTax, error)
}

// Service exposes cached catalog lookups.
type Service struct {
	source Source
	cache  *Cache
	group  singleflight.Group
	logger *slog.Logger
}

// NewService constructs the catalog service. cache may be nil.
func NewService(source Source, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, cache: cache, logger: logger}
}

// CustomTaxes returns the backend tax table. Concurrent misses share one backend call.
func (s *Service) CustomTaxes(ctx context.Context) ([]pricing.CustomTax, error) {
	var out []pricing.CustomTax
	err := s.cached(ctx, "tax_rates", &out, func(ctx context.Context) (any, error) {
		return s.source.ListTaxRates(ctx)
	})
	return out, err
}

// Items returns the purchasable item catalog in its selectable form.
func (s *Service) Items(ctx context.Context) ([]pricing.CatalogItem, error) {
	var raw []backend.Item
	err := s.cached(ctx, "items", &raw, func(ctx context.Context) (any, error) {
		return s.source.ListItems(ctx)
	})
	if err != nil {
		return nil, err
	}
	out := make([]pricing.CatalogItem, 0, len(raw))
	for _, item := range raw {
		out = append(out, item.Pricing())
	}
	return out, nil
}

// Vendor fetches a vendor. Vendors are not cached: their GST details must be current.
func (s *Service) Vendor(ctx context.Context, id string) (backend.Vendor, error) {
	return s.source.GetVendor(ctx, id)
}

// Refresh drops every cached table.
func (s *Service) Refresh(ctx context.Context) error {
	if err := s.cache.Bump(ctx); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "catalog cache bumped")
	return nil
}

// TaxOptions lists the tax options for orders from vendorID delivered to deliveryState.
func (s *Service) TaxOptions(ctx context.Context, vendorID, deliveryState string) (TaxOptions, error) {
	var (
		vendor backend.Vendor
		custom []pricing.CustomTax
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := s.Vendor(gctx, vendorID)
		if err != nil {
			return err
		}
		vendor = v
		return nil
	})
	g.Go(func() error {
		rates, err := s.CustomTaxes(gctx)
		if err != nil {
			return err
		}
		custom = rates
		return nil
	})
	if err := g.Wait(); err != nil {
		return TaxOptions{}, err
	}
	source := vendor.TaxDetails.SourceState
	return TaxOptions{
		Classification: pricing.Classify(source, deliveryState),
		SourceState:    source,
		DeliveryState:  deliveryState,
		Options:        pricing.Resolve(source, deliveryState, custom),
	}, nil
}

// TaxOptions is the tax picker payload for one vendor/delivery pair.
type TaxOptions struct {
	Classification pricing.Classification `json:"classification"`
	SourceState    string                 `json:"sourceState"`
	DeliveryState  string                 `json:"deliveryState"`
	Options        []pricing.TaxOption    `json:"options"`
}

func (s *Service) cached(ctx context.Context, name string, dest any, loader func(context.Context) (any, error)) error {
	key, err := s.cache.BuildKey(ctx, name)
	if err != nil {
		s.logger.WarnContext(ctx, "catalog cache key", slog.String("table", name), slog.Any("error", err))
		return roundTripLoad(ctx, dest, loader)
	}
	res := s.group.DoChan(key, func() (any, error) {
		var raw rawJSON
		if err := s.cache.FetchJSON(context.WithoutCancel(ctx), key, &raw, loader); err != nil {
			return nil, err
		}
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-res:
		if r.Err != nil {
			return r.Err
		}
		return roundTrip(r.Val, dest)
	}
}

func roundTripLoad(ctx context.Context, dest any, loader func(context.Context) (any, error)) error {
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	return roundTrip(value, dest)
}

// rawJSON keeps shared singleflight results immutable between callers.
type rawJSON []byte

func (r rawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

func (r *rawJSON) UnmarshalJSON(b []byte) error {
	*r = append((*r)[:0], b...)
	return nil
}
