package services

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/returnordie/til-i-allt-sub001/internal/cache"
	"github.com/returnordie/til-i-allt-sub001/internal/config"
	"github.com/returnordie/til-i-allt-sub001/internal/db"
	"github.com/returnordie/til-i-allt-sub001/internal/models"
	"github.com/returnordie/til-i-allt-sub001/internal/policy"
	"github.com/returnordie/til-i-allt-sub001/internal/utils"
	"github.com/returnordie/til-i-allt-sub001/internal/validation"
)

// NavCacheKey holds the serialized navigation tree. Bump the version when its shape changes.
const NavCacheKey = "nav:categories:v1"

// ICategoryService manages categories and the cached navigation tree.
type ICategoryService interface {
	NavTree(ctx context.Context) ([]models.NavSection, error)
	FindBySlug(ctx context.Context, section models.Section, slug string) (*models.Category, error)
	List(ctx context.Context, section models.Section) ([]models.Category, error)
	Create(ctx context.Context, actor *models.User, in *validation.CategoryInput) (*models.Category, error)
	Update(ctx context.Context, actor *models.User, id utils.SixID, in *validation.CategoryInput) (*models.Category, error)
	Delete(ctx context.Context, actor *models.User, id utils.SixID) error
	Upsert(ctx context.Context, c *models.Category) (*models.Category, error)
	InvalidateNav(ctx context.Context) error
}

type categoryService struct {
	db        *mongo.Database
	cfg       *config.Config
	validator *validation.Validator
	store     cache.Store
}

func NewCategoryService(db *mongo.Database, cfg *config.Config, v *validation.Validator, store cache.Store) ICategoryService {
	return &categoryService{db: db, cfg: cfg, validator: v, store: store}
}

// NavTree serves the tree from the cache, rebuilding it from the store on a miss.
func (s *categoryService) NavTree(ctx context.Context) ([]models.NavSection, error) {
	return cache.ReadThrough(ctx, s.store, NavCacheKey, s.cfg.NavCacheTTL, func(ctx context.Context) ([]models.NavSection, error) {
		categories, err := s.List(ctx, "")
		if err != nil {
			return nil, err
		}
		return models.BuildNavTree(categories), nil
	})
}

func (s *categoryService) InvalidateNav(ctx context.Context) error {
	if err := s.store.Del(ctx, NavCacheKey); err != nil {
		return fmt.Errorf("failed to invalidate nav cache: %w", err)
	}
	return nil
}

func (s *categoryService) invalidate(ctx context.Context) {
	if err := s.InvalidateNav(ctx); err != nil {
		zap.L().Warn("nav cache invalidation failed", zap.Error(err))
	}
}

func (s *categoryService) FindBySlug(ctx context.Context, section models.Section, slug string) (*models.Category, error) {
	var c models.Category
	if err := findOne(ctx, s.db.Collection(categoriesCollection), "category", bson.M{"section": section, "slug": slug}, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *categoryService) findByID(ctx context.Context, id utils.SixID) (*models.Category, error) {
	var c models.Category
	if err := findOne(ctx, s.db.Collection(categoriesCollection), "category", bson.M{"_id": id}, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns the categories of section, or of every section when it is empty.
func (s *categoryService) List(ctx context.Context, section models.Section) ([]models.Category, error) {
	filter := bson.M{}
	if section != "" {
		filter["section"] = section
	}
	opts := options.Find().SetSort(bson.D{{Key: "section", Value: 1}, {Key: "position", Value: 1}, {Key: "name", Value: 1}})
	cur, err := s.db.Collection(categoriesCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	categories := []models.Category{}
	if err := cur.All(ctx, &categories); err != nil {
		return nil, fmt.Errorf("failed to decode categories: %w", err)
	}
	return categories, nil
}

// checkParent requires parent to be a root category of section.
func (s *categoryService) checkParent(ctx context.Context, in *validation.CategoryInput, self utils.SixID) error {
	parentID := in.Parent()
	if parentID == nil {
		return nil
	}
	if *parentID == self {
		return validation.Single("parent_id", "A category cannot be its own parent.")
	}
	parent, err := s.findByID(ctx, *parentID)
	if errors.Is(err, ErrNotFound) {
		return validation.Single("parent_id", "The selected parent id is invalid.")
	}
	if err != nil {
		return err
	}
	if parent.Section != models.Section(in.Section) || parent.ParentID != nil {
		return validation.Single("parent_id", "The selected parent id is invalid.")
	}
	return nil
}

func slugTaken(err error) error {
	if db.DuplicateKeyIndex(err) == categorySlugIdx {
		return validation.Single("slug", "The slug has already been taken.")
	}
	return nil
}

func (s *categoryService) Create(ctx context.Context, actor *models.User, in *validation.CategoryInput) (*models.Category, error) {
	if err := s.validator.Category(in); err != nil {
		return nil, err
	}
	if err := policy.Check("category.create", policy.Admin.Manage(actor)); err != nil {
		return nil, err
	}
	if err := s.checkParent(ctx, in, utils.SixID{}); err != nil {
		return nil, err
	}
	c := &models.Category{
		Section:  models.Section(in.Section),
		Slug:     in.Slug,
		Name:     in.Name,
		ParentID: in.Parent(),
		Position: in.Position,
	}
	if err := db.InsertOne(ctx, s.db.Collection(categoriesCollection), c); err != nil {
		if verr := slugTaken(err); verr != nil {
			return nil, verr
		}
		return nil, fmt.Errorf("failed to insert category %s/%s: %w", in.Section, in.Slug, err)
	}
	s.invalidate(ctx)
	return c, nil
}

func (s *categoryService) Update(ctx context.Context, actor *models.User, id utils.SixID, in *validation.CategoryInput) (*models.Category, error) {
	if err := s.validator.Category(in); err != nil {
		return nil, err
	}
	if _, err := s.findByID(ctx, id); err != nil {
		return nil, err
	}
	if err := policy.Check("category.update", policy.Admin.Manage(actor)); err != nil {
		return nil, err
	}
	if err := s.checkParent(ctx, in, id); err != nil {
		return nil, err
	}

	set := bson.M{"section": in.Section, "slug": in.Slug, "name": in.Name, "position": in.Position}
	update := bson.M{"$set": set}
	if p := in.Parent(); p != nil {
		set["parent_id"] = *p
	} else {
		update["$unset"] = bson.M{"parent_id": ""}
	}

	var updated models.Category
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := s.db.Collection(categoriesCollection).FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound("category")
	}
	if err != nil {
		if verr := slugTaken(err); verr != nil {
			return nil, verr
		}
		return nil, fmt.Errorf("failed to update category %s: %w", id.String(), err)
	}
	s.invalidate(ctx)
	return &updated, nil
}

// Delete removes a category without children.
func (s *categoryService) Delete(ctx context.Context, actor *models.User, id utils.SixID) error {
	if _, err := s.findByID(ctx, id); err != nil {
		return err
	}
	if err := policy.Check("category.delete", policy.Admin.Manage(actor)); err != nil {
		return err
	}
	coll := s.db.Collection(categoriesCollection)
	n, err := coll.CountDocuments(ctx, bson.M{"parent_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("failed to count child categories: %w", err)
	}
	if n > 0 {
		return validation.Single("category", "The category still has subcategories.")
	}
	if _, err := coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete category %s: %w", id.String(), err)
	}
	s.invalidate(ctx)
	return nil
}

// Upsert writes c keyed by (section, slug), keeping an existing id. Used by seeding.
func (s *categoryService) Upsert(ctx context.Context, c *models.Category) (*models.Category, error) {
	c.GenIDIfEmpty()
	filter := bson.M{"section": c.Section, "slug": c.Slug}
	set := bson.M{"name": c.Name, "position": c.Position}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"_id": c.ID},
	}
	if c.ParentID != nil {
		set["parent_id"] = *c.ParentID
	} else {
		update["$unset"] = bson.M{"parent_id": ""}
	}
	var stored models.Category
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	if err := s.db.Collection(categoriesCollection).FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored); err != nil {
		return nil, fmt.Errorf("failed to upsert category %s/%s: %w", c.Section, c.Slug, err)
	}
	s.invalidate(ctx)
	return &stored, nil
}
