package service

import (
	"context"
	"strings"
	"time"

	"dukapos/backend/internal/domain"
	"dukapos/backend/internal/observe"
)

// Categories and suppliers are simple reference registries. Both are
// soft-deleted; deleting a category never cascades to its products.

func (s *Service) SaveCategory(ctx context.Context, req domain.CategorySaveRequest) (*domain.Category, error) {
	if _, err := s.requirePermission(ctx, domain.PermManageInventory); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if len(req.Name) < 2 {
		return nil, invalid("name", "must be at least 2 characters")
	}
	slug := strings.TrimSpace(req.Slug)
	if slug == "" {
		slug = domain.Slugify(req.Name)
	}

	now := time.Now().UTC()
	category := domain.Category{
		ID:          req.ID,
		Name:        req.Name,
		Slug:        slug,
		Description: strings.TrimSpace(req.Description),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.ID != "" {
		existing, err := s.repo.GetCategory(ctx, req.ID)
		if err != nil {
			return nil, wrapStore("lookup category", err)
		}
		category.CreatedAt = existing.CreatedAt
	}

	saved, err := s.repo.SaveCategory(ctx, category)
	if err != nil {
		return nil, wrapStore("save category", err)
	}
	s.publish(observe.TopicCategories, "saved", saved.ID)
	return saved, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	if id == "" {
		return nil, invalid("id", "required")
	}
	return s.repo.GetCategory(ctx, id)
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if _, err := s.requirePermission(ctx, domain.PermManageInventory); err != nil {
		return err
	}
	if id == "" {
		return invalid("id", "required")
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return wrapStore("delete category", err)
	}
	s.publish(observe.TopicCategories, "deleted", id)
	return nil
}

func (s *Service) SaveSupplier(ctx context.Context, req domain.SupplierSaveRequest) (*domain.Supplier, error) {
	if _, err := s.requirePermission(ctx, domain.PermManageSuppliers); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, invalid("name", "required")
	}

	now := time.Now().UTC()
	supplier := domain.Supplier{
		ID:          req.ID,
		Name:        req.Name,
		ContactInfo: strings.TrimSpace(req.ContactInfo),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.ID != "" {
		existing, err := s.repo.GetSupplier(ctx, req.ID)
		if err != nil {
			return nil, wrapStore("lookup supplier", err)
		}
		supplier.CreatedAt = existing.CreatedAt
	}

	saved, err := s.repo.SaveSupplier(ctx, supplier)
	if err != nil {
		return nil, wrapStore("save supplier", err)
	}
	s.publish(observe.TopicSuppliers, "saved", saved.ID)
	return saved, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	if id == "" {
		return nil, invalid("id", "required")
	}
	return s.repo.GetSupplier(ctx, id)
}

func (s *Service) DeleteSupplier(ctx context.Context, id string) error {
	if _, err := s.requirePermission(ctx, domain.PermManageSuppliers); err != nil {
		return err
	}
	if id == "" {
		return invalid("id", "required")
	}
	if err := s.repo.DeleteSupplier(ctx, id); err != nil {
		return wrapStore("delete supplier", err)
	}
	s.publish(observe.TopicSuppliers, "deleted", id)
	return nil
}
