package services

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/returnordie/til-i-allt-sub001/internal/config"
	"github.com/returnordie/til-i-allt-sub001/internal/db"
	"github.com/returnordie/til-i-allt-sub001/internal/metrics"
	"github.com/returnordie/til-i-allt-sub001/internal/models"
	"github.com/returnordie/til-i-allt-sub001/internal/policy"
	"github.com/returnordie/til-i-allt-sub001/internal/storage"
	"github.com/returnordie/til-i-allt-sub001/internal/utils"
	"github.com/returnordie/til-i-allt-sub001/internal/validation"
)

// AdQuery filters an ad search. Zero fields do not filter.
type AdQuery struct {
	Section      models.Section
	CategorySlug string
	ListingType  string
	Text         string
	UserID       *utils.SixID
	// AnyStatus includes ads that are not active; only honoured for the owner's own list.
	AnyStatus bool
	Limit     int
	Cursor    string
}

// IAdService defines the ad operations.
type IAdService interface {
	Create(ctx context.Context, actor *models.User, in *validation.AdInput, uploads []validation.Upload) (*models.Ad, error)
	Find(ctx context.Context, adID utils.SixID) (*models.Ad, error)
	Update(ctx context.Context, actor *models.User, adID utils.SixID, in *validation.AdUpdateInput, uploads []validation.Upload) (*models.Ad, error)
	Delete(ctx context.Context, actor *models.User, adID utils.SixID) error
	MarkSold(ctx context.Context, actor *models.User, adID utils.SixID) (*models.Ad, error)
	Extend(ctx context.Context, actor *models.User, adID utils.SixID, in *validation.ExtendInput) (*models.Ad, error)
	Search(ctx context.Context, actor *models.User, q AdQuery) ([]models.Ad, string, error)
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
	MarkImageProcessed(ctx context.Context, adID, imageID utils.SixID, thumbKey string, size int64) error
}

type adService struct {
	db         *mongo.Database
	cfg        *config.Config
	validator  *validation.Validator
	categories ICategoryService
	configSvc  IConfigService
	storage    storage.IS3Storage
	images     ImageQueue
}

// NewAdService creates a new AdService. images may be nil, in which case
// uploads stay unprocessed.
func NewAdService(db *mongo.Database, cfg *config.Config, v *validation.Validator, categories ICategoryService, configSvc IConfigService, store storage.IS3Storage, images ImageQueue) IAdService {
	return &adService{db: db, cfg: cfg, validator: v, categories: categories, configSvc: configSvc, storage: store, images: images}
}

func (s *adService) Find(ctx context.Context, adID utils.SixID) (*models.Ad, error) {
	var ad models.Ad
	if err := findOne(ctx, s.db.Collection(adsCollection), "ad", bson.M{"_id": adID, "deleted": false}, &ad); err != nil {
		return nil, err
	}
	return &ad, nil
}

// resolveCategory maps the submitted slug onto a category of the section.
func (s *adService) resolveCategory(ctx context.Context, in *validation.AdInput) (*models.Category, error) {
	c, err := s.categories.FindBySlug(ctx, models.Section(in.Section), in.CategorySlug)
	if errors.Is(err, ErrNotFound) {
		return nil, validation.Single("category_slug", "The selected category slug is invalid.")
	}
	return c, err
}

// upload stores files under the ad and returns their image records. On failure
// the objects already written are removed.
func (s *adService) upload(ctx context.Context, adID utils.SixID, uploads []validation.Upload, firstPosition int) ([]models.AdImage, error) {
	images := make([]models.AdImage, 0, len(uploads))
	for i, u := range uploads {
		contentType := u.ContentType
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = mime.TypeByExtension("." + u.Ext())
		}
		key := storage.AdImageKey(adID, u.Ext())
		err := func() error {
			body, err := u.Open()
			if err != nil {
				return fmt.Errorf("failed to open upload %s: %w", u.Filename, err)
			}
			defer body.Close()
			return s.storage.PutObject(ctx, key, contentType, body, u.Size)
		}()
		if err != nil {
			s.removeObjects(ctx, images)
			return nil, err
		}
		images = append(images, models.AdImage{
			ID:          utils.NewSixID(),
			Key:         key,
			ContentType: contentType,
			Size:        u.Size,
			Position:    firstPosition + i,
		})
	}
	return images, nil
}

// removeObjects deletes stored image objects best-effort.
func (s *adService) removeObjects(ctx context.Context, images []models.AdImage) {
	for _, img := range images {
		for _, key := range []string{img.Key, img.ThumbKey} {
			if key == "" {
				continue
			}
			if err := s.storage.DeleteObject(ctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
				zap.L().Warn("failed to delete image object", zap.String("key", key), zap.Error(err))
			}
		}
	}
}

func (s *adService) enqueueImages(ctx context.Context, adID utils.SixID, images []models.AdImage) {
	if s.images == nil {
		return
	}
	for _, img := range images {
		if err := s.images.EnqueueImageProcess(ctx, adID, img.ID, img.Key); err != nil {
			zap.L().Error("failed to enqueue image processing", zap.String("ad_id", adID.String()), zap.String("image_id", img.ID.String()), zap.Error(err))
		}
	}
}

func applyAdInput(ad *models.Ad, in *validation.AdInput, c *models.Category) {
	ad.Section = models.Section(in.Section)
	ad.CategoryID = c.ID
	ad.CategorySlug = c.Slug
	ad.ListingType = models.ListingType(in.ListingType)
	ad.Title = in.Title
	ad.Price = in.Price
	ad.Description = in.Description
	ad.Attributes = in.Attributes
}

func (s *adService) Create(ctx context.Context, actor *models.User, in *validation.AdInput, uploads []validation.Upload) (*models.Ad, error) {
	if err := s.validator.CreateAd(in, uploads); err != nil {
		return nil, err
	}
	category, err := s.resolveCategory(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := policy.Check("ad.create", policy.Ads.Create(actor)); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ad := models.NewAd(actor.ID, now, config.Days(s.cfg.AdLifetimeDays))
	applyAdInput(ad, in, category)

	coll := s.db.Collection(adsCollection)
	if err := db.InsertOne(ctx, coll, ad); err != nil {
		return nil, fmt.Errorf("failed to insert ad for user %s: %w", actor.ID.String(), err)
	}
	if len(uploads) == 0 {
		return ad, nil
	}

	images, err := s.upload(ctx, ad.ID, uploads, 0)
	if err != nil {
		if _, derr := coll.DeleteOne(ctx, bson.M{"_id": ad.ID}); derr != nil {
			zap.L().Error("failed to roll back ad after upload failure", zap.String("ad_id", ad.ID.String()), zap.Error(derr))
		}
		return nil, fmt.Errorf("failed to store ad images: %w", err)
	}
	ad.Images = images
	main := utils.SixID{}
	if in.MainImageIndex != nil {
		main = images[*in.MainImageIndex].ID
	}
	ad.SetMainImage(main)

	if _, err := coll.UpdateOne(ctx, bson.M{"_id": ad.ID}, bson.M{"$set": bson.M{"images": ad.Images}}); err != nil {
		s.removeObjects(ctx, images)
		return nil, fmt.Errorf("failed to attach images to ad %s: %w", ad.ID.String(), err)
	}
	s.enqueueImages(ctx, ad.ID, ad.Images)
	zap.L().Info("ad created", zap.String("ad_id", ad.ID.String()), zap.String("user_id", actor.ID.String()), zap.Int("images", len(images)))
	return ad, nil
}

func (s *adService) Update(ctx context.Context, actor *models.User, adID utils.SixID, in *validation.AdUpdateInput, uploads []validation.Upload) (*models.Ad, error) {
	if err := s.validator.UpdateAd(in, uploads); err != nil {
		return nil, err
	}
	ad, err := s.Find(ctx, adID)
	if err != nil {
		return nil, err
	}
	if err := policy.Check("ad.update", policy.Ads.Update(actor, ad)); err != nil {
		return nil, err
	}
	category, err := s.resolveCategory(ctx, &in.AdInput)
	if err != nil {
		return nil, err
	}

	deleteIDs := in.DeleteIDs()
	for _, id := range deleteIDs {
		if _, ok := ad.Image(id); !ok {
			return nil, notFound("image")
		}
	}
	previousMain := utils.SixID{}
	if m := ad.MainImage(); m != nil {
		previousMain = m.ID
	}
	removed := ad.RemoveImages(deleteIDs)
	if len(ad.Images)+len(uploads) > s.validator.Limits().MaxImages {
		return nil, validation.Single("images", fmt.Sprintf("An ad may not have more than %d images.", s.validator.Limits().MaxImages))
	}
	var mainID utils.SixID
	if in.MainImageID != "" {
		mainID, _ = utils.ParseSixID(in.MainImageID)
		if _, ok := ad.Image(mainID); !ok {
			return nil, validation.Single("main_image_id", "The selected main image id is invalid.")
		}
	}

	added, err := s.upload(ctx, ad.ID, uploads, len(ad.Images))
	if err != nil {
		return nil, fmt.Errorf("failed to store ad images: %w", err)
	}
	ad.Images = append(ad.Images, added...)
	switch {
	case !mainID.IsZero():
	case in.MainImageIndex != nil:
		mainID = added[*in.MainImageIndex].ID
	default:
		mainID = previousMain
	}
	ad.SetMainImage(mainID)

	applyAdInput(ad, &in.AdInput, category)
	ad.UpdatedAt = time.Now().UTC()
	set := bson.M{
		"section":       ad.Section,
		"category_id":   ad.CategoryID,
		"category_slug": ad.CategorySlug,
		"listing_type":  ad.ListingType,
		"title":         ad.Title,
		"description":   ad.Description,
		"attributes":    ad.Attributes,
		"images":        ad.Images,
		"updated_at":    ad.UpdatedAt,
	}
	update := bson.M{"$set": set}
	if ad.Price != nil {
		set["price"] = *ad.Price
	} else {
		update["$unset"] = bson.M{"price": ""}
	}
	res, err := s.db.Collection(adsCollection).UpdateOne(ctx, bson.M{"_id": ad.ID, "deleted": false}, update)
	if err != nil {
		s.removeObjects(ctx, added)
		return nil, fmt.Errorf("failed to update ad %s: %w", ad.ID.String(), err)
	}
	if res.MatchedCount == 0 {
		s.removeObjects(ctx, added)
		return nil, notFound("ad")
	}
	s.removeObjects(ctx, removed)
	s.enqueueImages(ctx, ad.ID, added)
	return ad, nil
}

// Delete soft-deletes the ad. Images stay in storage.
func (s *adService) Delete(ctx context.Context, actor *models.User, adID utils.SixID) error {
	ad, err := s.Find(ctx, adID)
	if err != nil {
		return err
	}
	if err := policy.Check("ad.delete", policy.Ads.Delete(actor, ad)); err != nil {
		return err
	}
	_, err = s.db.Collection(adsCollection).UpdateOne(ctx, bson.M{"_id": adID}, bson.M{"$set": bson.M{"deleted": true, "updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("failed to delete ad %s: %w", adID.String(), err)
	}
	zap.L().Info("ad deleted", zap.String("ad_id", adID.String()), zap.String("actor_id", actor.ID.String()))
	return nil
}

// markAdSold sets the sold state. Shared with the deal service, which marks
// the ad sold when a deal completes.
func markAdSold(ctx context.Context, database *mongo.Database, adID utils.SixID, now time.Time) (*models.Ad, error) {
	var ad models.Ad
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := database.Collection(adsCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": adID, "deleted": false},
		bson.M{"$set": bson.M{"status": models.AdStatusSold, "sold_at": now, "updated_at": now}},
		opts,
	).Decode(&ad)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound("ad")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark ad %s sold: %w", adID.String(), err)
	}
	return &ad, nil
}

func (s *adService) MarkSold(ctx context.Context, actor *models.User, adID utils.SixID) (*models.Ad, error) {
	ad, err := s.Find(ctx, adID)
	if err != nil {
		return nil, err
	}
	if err := policy.Check("ad.mark_sold", policy.Ads.MarkSold(actor, ad)); err != nil {
		return nil, err
	}
	return markAdSold(ctx, s.db, adID, time.Now().UTC())
}

// Extend pushes expires_at forward by one of the allowed lengths. Archived
// ads are reactivated; sold ads cannot be extended.
func (s *adService) Extend(ctx context.Context, actor *models.User, adID utils.SixID, in *validation.ExtendInput) (*models.Ad, error) {
	if err := s.validator.ExtendAd(in, s.configSvc.AdExtendAllowedDays(ctx)); err != nil {
		return nil, err
	}
	ad, err := s.Find(ctx, adID)
	if err != nil {
		return nil, err
	}
	if err := policy.Check("ad.extend", policy.Ads.Extend(actor, ad) && ad.Status != models.AdStatusSold); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	expires := ad.Extend(now, config.Days(in.Days))
	if ad.Status == models.AdStatusArchived {
		ad.Status = models.AdStatusActive
	}
	ad.UpdatedAt = now
	_, err = s.db.Collection(adsCollection).UpdateOne(ctx, bson.M{"_id": adID},
		bson.M{"$set": bson.M{"expires_at": expires, "status": ad.Status, "updated_at": now}})
	if err != nil {
		return nil, fmt.Errorf("failed to extend ad %s: %w", adID.String(), err)
	}
	return ad, nil
}

// Search lists ads newest first using the published_at keyset cursor.
func (s *adService) Search(ctx context.Context, actor *models.User, q AdQuery) ([]models.Ad, string, error) {
	limit := PageSize(q.Limit)
	filter := bson.M{"deleted": false}

	ownList := q.UserID != nil && actor != nil && (actor.ID == *q.UserID || actor.IsAdmin())
	if !q.AnyStatus || !ownList {
		filter["status"] = models.AdStatusActive
	}
	if q.UserID != nil {
		filter["user_id"] = *q.UserID
	}
	if q.Section != "" {
		filter["section"] = q.Section
	}
	if q.CategorySlug != "" {
		filter["category_slug"] = q.CategorySlug
	}
	if q.ListingType != "" {
		lt, ok := models.NormalizeListingType(q.ListingType)
		if !ok {
			return nil, "", validation.Single("listing_type", "The selected listing type is invalid.")
		}
		filter["listing_type"] = lt
	}
	if q.Text != "" {
		filter["$text"] = bson.M{"$search": q.Text}
	}
	applyCursor(filter, "published_at", q.Cursor)

	opts := options.Find().SetSort(descending("published_at")).SetLimit(int64(limit + 1))
	cur, err := s.db.Collection(adsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, "", fmt.Errorf("failed to execute ad search query: %w", err)
	}
	ads := []models.Ad{}
	if err := cur.All(ctx, &ads); err != nil {
		return nil, "", fmt.Errorf("failed to decode ad search results: %w", err)
	}

	next := ""
	if len(ads) > limit {
		last := ads[limit-1]
		if last.PublishedAt != nil {
			next = EncodeCursor(*last.PublishedAt, last.ID)
		}
		ads = ads[:limit]
	}
	return ads, next, nil
}

// ExpireDue archives active ads whose expiry has passed.
func (s *adService) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.Collection(adsCollection).UpdateMany(ctx,
		bson.M{"status": models.AdStatusActive, "deleted": false, "expires_at": bson.M{"$lte": now}},
		bson.M{"$set": bson.M{"status": models.AdStatusArchived, "updated_at": now}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire ads: %w", err)
	}
	if res.ModifiedCount > 0 {
		metrics.AdsExpired.Add(float64(res.ModifiedCount))
		zap.L().Info("expired ads archived", zap.Int64("count", res.ModifiedCount))
	}
	return res.ModifiedCount, nil
}

// MarkImageProcessed records the worker's output for one image.
func (s *adService) MarkImageProcessed(ctx context.Context, adID, imageID utils.SixID, thumbKey string, size int64) error {
	res, err := s.db.Collection(adsCollection).UpdateOne(ctx,
		bson.M{"_id": adID, "images.id": imageID},
		bson.M{"$set": bson.M{
			"images.$.processed": true,
			"images.$.thumb_key": thumbKey,
			"images.$.size":      size,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark image %s processed: %w", imageID.String(), err)
	}
	if res.MatchedCount == 0 {
		return notFound("image")
	}
	return nil
}
