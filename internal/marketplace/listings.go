package marketplace

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/sudo-init-do/stonemart/internal/apperr"
	"github.com/sudo-init-do/stonemart/internal/authz"
	"github.com/sudo-init-do/stonemart/internal/models"
	"github.com/sudo-init-do/stonemart/internal/store"
)

type ListingInput struct {
	Title        string  `json:"title"`
	Price        float64 `json:"price"`
	Quantity     int     `json:"quantity"`
	Unit         string  `json:"unit"`
	ShippingCost float64 `json:"shippingCost"`
	LeadTimeDays int     `json:"leadTimeDays"`
}

// CreateListing puts a vendor's product up for bidding. Catalog details
// live elsewhere; this keeps what the inventory guard needs.
func (s *Service) CreateListing(ctx context.Context, actor models.Actor, in ListingInput) (*models.Listing, error) {
	if err := authz.Require(actor, authz.ListingCreate); err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	switch {
	case in.Title == "" || in.Price <= 0:
		return nil, apperr.Invalid("title and valid price are required")
	case in.Quantity < 1:
		return nil, apperr.Invalid("quantity must be at least 1")
	case in.ShippingCost < 0:
		return nil, apperr.Invalid("shipping cost cannot be negative")
	case in.LeadTimeDays < 0:
		return nil, apperr.Invalid("lead time cannot be negative")
	}
	if in.Unit == "" {
		in.Unit = "sqft"
	}

	now := s.now()
	l := &models.Listing{
		ID:           uuid.NewString(),
		SellerID:     actor.ID,
		Title:        in.Title,
		Price:        in.Price,
		Quantity:     in.Quantity,
		Unit:         in.Unit,
		ShippingCost: in.ShippingCost,
		LeadTimeDays: in.LeadTimeDays,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateListing(ctx, l); err != nil {
		return nil, apperr.Fatal(err, "failed to create listing")
	}
	s.log.WithField("listing_id", l.ID).Info("listing created")
	return l, nil
}

func (s *Service) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	return loadListing(ctx, s.store, id)
}

// ListListings pages through listings, newest first.
func (s *Service) ListListings(ctx context.Context, activeOnly bool, page models.Page) ([]models.Listing, int, error) {
	items, total, err := s.store.ListListings(ctx, activeOnly, page)
	if err != nil {
		return nil, 0, apperr.Fatal(err, "failed to load listings")
	}
	return items, total, nil
}

func loadListing(ctx context.Context, r store.Listings, id string) (*models.Listing, error) {
	l, err := r.GetListing(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Product not found")
	}
	if err != nil {
		return nil, apperr.Fatal(err, "failed to load product")
	}
	return l, nil
}

// lockListing is loadListing under a row lock, for use inside a
// transaction.
func lockListing(ctx context.Context, r store.Listings, id string) (*models.Listing, error) {
	l, err := r.LockListing(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Product not found")
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}
