package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"autoservice/pkg/domain"
	"autoservice/pkg/store"
)

// RegisterBrand adds a brand to the catalogue. Names are unique.
func (a *App) RegisterBrand(ctx context.Context, name string) (domain.Brand, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Brand{}, domain.Validation("name")
	}
	if !domain.ValidBrandName(name) {
		return domain.Brand{}, domain.Invalid("name", "must not contain '"+domain.BrandDelimiter+"'")
	}
	brand, err := a.store.InsertBrand(ctx, name)
	if errors.Is(err, store.ErrDuplicate) {
		return domain.Brand{}, domain.Conflict(domain.EntityBrand)
	}
	if err != nil {
		return domain.Brand{}, domain.StoreFailure(fmt.Errorf("insert brand: %w", err))
	}
	return brand, nil
}

// ListBrands returns the brand catalogue.
func (a *App) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	brands, err := a.store.ListBrands(ctx)
	if err != nil {
		return nil, domain.StoreFailure(fmt.Errorf("list brands: %w", err))
	}
	return brands, nil
}
