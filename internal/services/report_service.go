package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/returnordie/til-i-allt-sub001/internal/db"
	"github.com/returnordie/til-i-allt-sub001/internal/models"
	"github.com/returnordie/til-i-allt-sub001/internal/policy"
	"github.com/returnordie/til-i-allt-sub001/internal/utils"
	"github.com/returnordie/til-i-allt-sub001/internal/validation"
)

// IReportService handles ad complaints and the moderation queue.
type IReportService interface {
	Create(ctx context.Context, actor *models.User, adID utils.SixID, in *validation.ReportInput) (*models.AdReport, error)
	Find(ctx context.Context, actor *models.User, reportID utils.SixID) (*models.AdReport, error)
	ListOpen(ctx context.Context, actor *models.User, limit int, cursor string) ([]models.AdReport, string, error)
	Handle(ctx context.Context, actor *models.User, reportID utils.SixID, in *validation.HandleReportInput) (*models.AdReport, error)
}

type reportService struct {
	db        *mongo.Database
	validator *validation.Validator
	ads       IAdService
}

func NewReportService(db *mongo.Database, v *validation.Validator, ads IAdService) IReportService {
	return &reportService{db: db, validator: v, ads: ads}
}

func (s *reportService) load(ctx context.Context, id utils.SixID) (*models.AdReport, error) {
	var r models.AdReport
	if err := findOne(ctx, s.db.Collection(adReportsCollection), "report", bson.M{"_id": id}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *reportService) Create(ctx context.Context, actor *models.User, adID utils.SixID, in *validation.ReportInput) (*models.AdReport, error) {
	if err := s.validator.ReportAd(in); err != nil {
		return nil, err
	}
	ad, err := s.ads.Find(ctx, adID)
	if err != nil {
		return nil, err
	}
	if err := policy.Check("ad.report", policy.Ads.Report(actor, ad)); err != nil {
		return nil, err
	}
	r := &models.AdReport{
		AdID:       ad.ID,
		ReporterID: actor.ID,
		Reason:     models.ReportReason(in.Reason),
		Notes:      in.Notes,
		Status:     models.ReportOpen,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.InsertOne(ctx, s.db.Collection(adReportsCollection), r); err != nil {
		return nil, fmt.Errorf("failed to insert report for ad %s: %w", ad.ID.String(), err)
	}
	zap.L().Info("ad reported", zap.String("report_id", r.ID.String()), zap.String("ad_id", ad.ID.String()), zap.String("reason", in.Reason))
	return r, nil
}

func (s *reportService) Find(ctx context.Context, actor *models.User, reportID utils.SixID) (*models.AdReport, error) {
	r, err := s.load(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if err := policy.Check("report.view", policy.Reports.View(actor, r)); err != nil {
		return nil, err
	}
	return r, nil
}

// ListOpen is the moderation queue, newest first.
func (s *reportService) ListOpen(ctx context.Context, actor *models.User, limit int, cursor string) ([]models.AdReport, string, error) {
	if err := policy.Check("admin.reports", policy.Admin.Manage(actor)); err != nil {
		return nil, "", err
	}
	limit = PageSize(limit)
	filter := bson.M{"status": models.ReportOpen}
	applyCursor(filter, "created_at", cursor)
	opts := options.Find().SetSort(descending("created_at")).SetLimit(int64(limit + 1))

	cur, err := s.db.Collection(adReportsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list reports: %w", err)
	}
	items := []models.AdReport{}
	if err := cur.All(ctx, &items); err != nil {
		return nil, "", fmt.Errorf("failed to decode reports: %w", err)
	}
	next := ""
	if len(items) > limit {
		last := items[limit-1]
		next = EncodeCursor(last.CreatedAt, last.ID)
		items = items[:limit]
	}
	return items, next, nil
}

// Handle closes an open report. Handling twice is denied.
func (s *reportService) Handle(ctx context.Context, actor *models.User, reportID utils.SixID, in *validation.HandleReportInput) (*models.AdReport, error) {
	if err := s.validator.HandleReport(in); err != nil {
		return nil, err
	}
	r, err := s.load(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if err := policy.Check("report.handle", policy.Reports.Handle(actor, r) && r.Status == models.ReportOpen); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := s.db.Collection(adReportsCollection).UpdateOne(ctx,
		bson.M{"_id": r.ID, "status": models.ReportOpen},
		bson.M{"$set": bson.M{"status": models.ReportHandled, "handled_by": actor.ID, "handled_at": now, "resolution": in.Resolution}})
	if err != nil {
		return nil, fmt.Errorf("failed to handle report %s: %w", r.ID.String(), err)
	}
	if res.MatchedCount == 0 {
		return nil, ErrForbidden
	}
	r.Status = models.ReportHandled
	r.HandledBy = &actor.ID
	r.HandledAt = &now
	r.Resolution = in.Resolution
	return r, nil
}
