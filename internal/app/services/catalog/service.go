// Package catalog manages the product listing.
package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/delivergo/storefront/internal/app/domain/catalog"
	"github.com/delivergo/storefront/internal/app/domain/user"
	"github.com/delivergo/storefront/internal/app/storage"
	"github.com/delivergo/storefront/internal/apperr"
	"github.com/delivergo/storefront/pkg/logger"
)

// Service manages products. Reads are public; writes are staff only.
type Service struct {
	store storage.ProductStore
	log   *logger.Logger
}

// New constructs a catalog service.
func New(store storage.ProductStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("catalog")
	}
	return &Service{store: store, log: log}
}

func validateProduct(p catalog.Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return apperr.Validation("product name is required")
	}
	if p.Price < 0 {
		return apperr.Validation("product price cannot be negative")
	}
	if p.Stock < 0 {
		return apperr.Validation("product stock cannot be negative")
	}
	return nil
}

// Create adds a product. Staff only.
func (s *Service) Create(ctx context.Context, actor user.Actor, p catalog.Product) (catalog.Product, error) {
	if !actor.Role.Staff() {
		return catalog.Product{}, apperr.Unauthorized("creating products requires a staff role")
	}
	if err := validateProduct(p); err != nil {
		return catalog.Product{}, err
	}
	created, err := s.store.CreateProduct(ctx, p)
	if err != nil {
		return catalog.Product{}, err
	}
	s.log.WithField("product_id", created.ID).WithField("name", created.Name).Info("product created")
	return created, nil
}

// Update replaces a product's fields. Staff only.
func (s *Service) Update(ctx context.Context, actor user.Actor, p catalog.Product) (catalog.Product, error) {
	if !actor.Role.Staff() {
		return catalog.Product{}, apperr.Unauthorized("updating products requires a staff role")
	}
	if err := validateProduct(p); err != nil {
		return catalog.Product{}, err
	}
	updated, err := s.store.UpdateProduct(ctx, p)
	if errors.Is(err, storage.ErrNotFound) {
		return catalog.Product{}, apperr.NotFoundf("product %s not found", p.ID)
	}
	return updated, err
}

// Get returns one product.
func (s *Service) Get(ctx context.Context, id string) (catalog.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return catalog.Product{}, apperr.NotFoundf("product %s not found", id)
	}
	return p, err
}

// List returns products, optionally filtered by category. Customers see only
// available products; staff see everything.
func (s *Service) List(ctx context.Context, actor user.Actor, category string) ([]catalog.Product, error) {
	onlyAvailable := !actor.Role.Staff()
	return s.store.ListProducts(ctx, category, onlyAvailable)
}

// SetAvailability toggles whether customers can order the product. Staff
// only. Delisting never removes the product; placed orders keep their
// snapshots.
func (s *Service) SetAvailability(ctx context.Context, actor user.Actor, id string, available bool) (catalog.Product, error) {
	if !actor.Role.Staff() {
		return catalog.Product{}, apperr.Unauthorized("changing availability requires a staff role")
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return catalog.Product{}, err
	}
	p.Available = available
	return s.store.UpdateProduct(ctx, p)
}
