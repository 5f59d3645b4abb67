// Package service implements the tenant-facing business operations.
// Every operation runs inside the tenant scope, so the lifecycle gate
// and ownership checks apply no matter which transport called it.
package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/hamzazeryouh/RealEstate/internal/errors"
	"github.com/hamzazeryouh/RealEstate/internal/model"
	"github.com/hamzazeryouh/RealEstate/internal/scope"
	"github.com/hamzazeryouh/RealEstate/internal/store"
	"github.com/hamzazeryouh/RealEstate/internal/tenancy"
)

// PropertyService manages real-estate listings for the calling tenant
type PropertyService struct {
	enforcer *scope.Enforcer
	logger   *zap.Logger
}

// NewPropertyService creates a property service
func NewPropertyService(enforcer *scope.Enforcer, logger *zap.Logger) *PropertyService {
	return &PropertyService{
		enforcer: enforcer,
		logger:   logger,
	}
}

// CreatePropertyInput carries the fields a tenant supplies for a new
// listing. Ownership is never part of the input.
type CreatePropertyInput struct {
	Address  string  `json:"address"`
	City     string  `json:"city"`
	Price    int64   `json:"price"`
	Bedrooms int     `json:"bedrooms"`
	AreaSqm  float64 `json:"area_sqm"`
}

// PropertyFilter narrows List results. Empty fields match everything.
type PropertyFilter struct {
	City   string
	Status model.PropertyStatus
}

// Create stores a new draft listing for the calling tenant
func (s *PropertyService) Create(ctx context.Context, input CreatePropertyInput) (*model.Property, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	prop := &model.Property{
		ID:       uuid.New().String(),
		Address:  input.Address,
		City:     input.City,
		Price:    input.Price,
		Bedrooms: input.Bedrooms,
		AreaSqm:  input.AreaSqm,
		Status:   model.PropertyDraft,
	}

	rec := prop.ToRecord()
	err := s.scoped(ctx, func(ctx context.Context) error {
		return s.enforcer.Persist(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	created := model.PropertyFromRecord(rec)
	s.logger.Info("property created",
		zap.String("tenant_id", created.TenantID),
		zap.String("property_id", created.ID),
		zap.String("city", created.City))
	return created, nil
}

// Get returns a single listing
func (s *PropertyService) Get(ctx context.Context, id string) (*model.Property, error) {
	var prop *model.Property
	err := s.scoped(ctx, func(ctx context.Context) error {
		rec, err := s.enforcer.Load(ctx, model.EntityTypeProperty, id)
		if err != nil {
			return err
		}
		prop = model.PropertyFromRecord(rec)
		return nil
	})
	return prop, err
}

// List returns the tenant's listings matching the filter
func (s *PropertyService) List(ctx context.Context, filter PropertyFilter) ([]*model.Property, error) {
	pred := store.Predicate{}
	if filter.City != "" {
		pred["city"] = filter.City
	}
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, apperrors.InvalidArgument("unknown listing status", nil).
				WithDetail("status", string(filter.Status))
		}
		pred["status"] = string(filter.Status)
	}

	var props []*model.Property
	err := s.scoped(ctx, func(ctx context.Context) error {
		records, err := s.enforcer.Query(ctx, model.EntityTypeProperty, pred)
		if err != nil {
			return err
		}
		props = make([]*model.Property, 0, len(records))
		for _, rec := range records {
			props = append(props, model.PropertyFromRecord(rec))
		}
		return nil
	})
	return props, err
}

// UpdatePrice changes a listing's asking price
func (s *PropertyService) UpdatePrice(ctx context.Context, id string, price int64) (*model.Property, error) {
	if price < 0 {
		return nil, apperrors.InvalidArgument("price must not be negative", nil).
			WithDetail("price", price)
	}

	var prop *model.Property
	err := s.scoped(ctx, func(ctx context.Context) error {
		rec, err := s.enforcer.Mutate(ctx, model.EntityTypeProperty, id, func(rec *model.EntityRecord) error {
			rec.Doc["price"] = price
			return nil
		})
		if err != nil {
			return err
		}
		prop = model.PropertyFromRecord(rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("property price updated",
		zap.String("tenant_id", prop.TenantID),
		zap.String("property_id", prop.ID),
		zap.Int64("price", price))
	return prop, nil
}

// ChangeStatus moves a listing to a new publication status
func (s *PropertyService) ChangeStatus(ctx context.Context, id string, status model.PropertyStatus) (*model.Property, error) {
	if !status.Valid() {
		return nil, apperrors.InvalidArgument("unknown listing status", nil).
			WithDetail("status", string(status))
	}

	var prop *model.Property
	err := s.scoped(ctx, func(ctx context.Context) error {
		rec, err := s.enforcer.Mutate(ctx, model.EntityTypeProperty, id, func(rec *model.EntityRecord) error {
			rec.Doc["status"] = string(status)
			return nil
		})
		if err != nil {
			return err
		}
		prop = model.PropertyFromRecord(rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("property status changed",
		zap.String("tenant_id", prop.TenantID),
		zap.String("property_id", prop.ID),
		zap.String("status", string(status)))
	return prop, nil
}

// Delete removes a listing
func (s *PropertyService) Delete(ctx context.Context, id string) error {
	err := s.scoped(ctx, func(ctx context.Context) error {
		return s.enforcer.Delete(ctx, model.EntityTypeProperty, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("property deleted", zap.String("property_id", id))
	return nil
}

// scoped derives the tenant from ctx and runs op inside the tenant
// scope. Without a resolved tenant the operation fails closed.
func (s *PropertyService) scoped(ctx context.Context, op func(context.Context) error) error {
	tc, err := tenancy.FromContext(ctx)
	if err != nil {
		return err
	}
	return s.enforcer.WithTenantScope(ctx, tc, op)
}

func validateCreate(input CreatePropertyInput) error {
	if input.Address == "" {
		return apperrors.InvalidArgument("address is required", nil)
	}
	if input.City == "" {
		return apperrors.InvalidArgument("city is required", nil)
	}
	if input.Price < 0 {
		return apperrors.InvalidArgument("price must not be negative", nil).
			WithDetail("price", input.Price)
	}
	if input.Bedrooms < 0 {
		return apperrors.InvalidArgument("bedrooms must not be negative", nil).
			WithDetail("bedrooms", input.Bedrooms)
	}
	return nil
}
