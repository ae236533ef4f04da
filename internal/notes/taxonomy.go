package notes

import (
	"context"

	"github.com/siahsang/notes/internal/policy"
	"github.com/siahsang/notes/internal/validator"
	"github.com/siahsang/notes/models"
)

const maxTermNameLength = 100

func (s *Service) checkTaxonomy(actor models.Actor, name string) error {
	if err := authorize(actor, policy.ManageTaxonomy, policy.Target{}); err != nil {
		return err
	}
	v := validator.New()
	v.CheckNotBlank(name, "name", "must be provided")
	v.CheckMaxLength(name, maxTermNameLength, "name", "must not be more than 100 characters long")
	if !v.IsValid() {
		return invalid(v)
	}
	return nil
}

func (s *Service) CreateCategory(ctx context.Context, actor models.Actor, name string) (*models.Category, error) {
	if err := s.checkTaxonomy(actor, name); err != nil {
		return nil, err
	}
	category, err := s.catalog.CreateCategory(ctx, name)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "Category created", "slug", category.Slug, "user_id", actor.UserID)
	return category, nil
}

// RenameCategory gives the category a new name and slug. The old slug keeps
// resolving so existing links can be redirected.
func (s *Service) RenameCategory(ctx context.Context, actor models.Actor, slug, name string) (*models.Category, error) {
	if err := s.checkTaxonomy(actor, name); err != nil {
		return nil, err
	}
	category, err := s.catalog.RenameCategory(ctx, slug, name)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "Category renamed", "from", slug, "to", category.Slug, "user_id", actor.UserID)
	return category, nil
}

// DeleteCategory fails with core.ErrCategoryInUse while articles reference the category.
func (s *Service) DeleteCategory(ctx context.Context, actor models.Actor, slug string) error {
	if err := authorize(actor, policy.ManageTaxonomy, policy.Target{}); err != nil {
		return err
	}
	if err := s.catalog.DeleteCategory(ctx, slug); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "Category deleted", "slug", slug, "user_id", actor.UserID)
	return nil
}

func (s *Service) CreateTag(ctx context.Context, actor models.Actor, name string) (*models.Tag, error) {
	if err := s.checkTaxonomy(actor, name); err != nil {
		return nil, err
	}
	tag, err := s.catalog.CreateTag(ctx, name)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "Tag created", "slug", tag.Slug, "user_id", actor.UserID)
	return tag, nil
}

func (s *Service) RenameTag(ctx context.Context, actor models.Actor, slug, name string) (*models.Tag, error) {
	if err := s.checkTaxonomy(actor, name); err != nil {
		return nil, err
	}
	tag, err := s.catalog.RenameTag(ctx, slug, name)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "Tag renamed", "from", slug, "to", tag.Slug, "user_id", actor.UserID)
	return tag, nil
}

// DeleteTag detaches the tag from its articles and removes it.
func (s *Service) DeleteTag(ctx context.Context, actor models.Actor, slug string) error {
	if err := authorize(actor, policy.ManageTaxonomy, policy.Target{}); err != nil {
		return err
	}
	if err := s.catalog.DeleteTag(ctx, slug); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "Tag deleted", "slug", slug, "user_id", actor.UserID)
	return nil
}
