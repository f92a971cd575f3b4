package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/returnordie/til-i-allt-sub001/internal/auth"
	"github.com/returnordie/til-i-allt-sub001/internal/config"
	"github.com/returnordie/til-i-allt-sub001/internal/db"
	"github.com/returnordie/til-i-allt-sub001/internal/models"
	"github.com/returnordie/til-i-allt-sub001/internal/policy"
	"github.com/returnordie/til-i-allt-sub001/internal/utils"
	"github.com/returnordie/til-i-allt-sub001/internal/validation"
)

// Email template ids sent by the user service.
const (
	TemplateWelcome         = "welcome"
	TemplatePasswordChanged = "password_changed"
)

// IUserService defines the account operations.
type IUserService interface {
	Register(ctx context.Context, in *validation.RegisterInput) (*models.User, error)
	Authenticate(ctx context.Context, in *validation.LoginInput) (*models.User, error)
	FindByID(ctx context.Context, userID utils.SixID) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateSettings(ctx context.Context, actor *models.User, in *validation.SettingsInput) (*models.User, error)
	ChangePassword(ctx context.Context, actor *models.User, in *validation.PasswordInput) error
	UpdateNotificationPreferences(ctx context.Context, actor *models.User, in *validation.NotificationPreferencesInput) (*models.User, error)
	SetActive(ctx context.Context, actor *models.User, userID utils.SixID, active bool) (*models.User, error)
	List(ctx context.Context, actor *models.User, limit int, cursor string) ([]models.User, string, error)
}

type userService struct {
	db        *mongo.Database
	cfg       *config.Config
	validator *validation.Validator
	configSvc IConfigService
	mailer    Mailer
}

// NewUserService creates a new UserService. mailer may be nil.
func NewUserService(db *mongo.Database, cfg *config.Config, v *validation.Validator, configSvc IConfigService, mailer Mailer) IUserService {
	return &userService{db: db, cfg: cfg, validator: v, configSvc: configSvc, mailer: mailer}
}

// uniqueViolation maps a duplicate key on a user unique index to a field error.
func uniqueViolation(err error) error {
	switch db.DuplicateKeyIndex(err) {
	case usernameIndex:
		return validation.Single("username", "The username has already been taken.")
	case emailIndex:
		return validation.Single("email", "The email has already been taken.")
	case phoneIndex:
		return validation.Single("phone", "The phone has already been taken.")
	}
	return nil
}

func (s *userService) sendEmail(ctx context.Context, u *models.User, templateID string) {
	if s.mailer == nil {
		return
	}
	data := map[string]any{"Name": u.Name, "Username": u.Username, "AppName": s.cfg.AppName, "AppURL": s.cfg.AppURL}
	if err := s.mailer.EnqueueEmail(ctx, u.Email, templateID, data); err != nil {
		zap.L().Error("failed to enqueue email", zap.String("template", templateID), zap.String("user_id", u.ID.String()), zap.Error(err))
	}
}

func (s *userService) Register(ctx context.Context, in *validation.RegisterInput) (*models.User, error) {
	if err := s.validator.Register(ctx, in); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.NewUser(in.Name, in.Username, in.Email, time.Now().UTC())
	user.PasswordHash = hash
	if err := db.InsertOne(ctx, s.db.Collection(usersCollection), user); err != nil {
		if verr := uniqueViolation(err); verr != nil {
			return nil, verr
		}
		return nil, fmt.Errorf("failed to insert user %s: %w", in.Username, err)
	}

	zap.L().Info("user registered", zap.String("user_id", user.ID.String()), zap.String("username", user.Username))
	s.sendEmail(ctx, user, TemplateWelcome)
	return user, nil
}

// Authenticate checks email and password. Unknown email, wrong password and
// inactive accounts all return ErrInvalidCredentials.
func (s *userService) Authenticate(ctx context.Context, in *validation.LoginInput) (*models.User, error) {
	if err := s.validator.Login(in); err != nil {
		return nil, err
	}
	var user models.User
	err := findOne(ctx, s.db.Collection(usersCollection), "user", bson.M{"email": in.Email, "deleted": false}, &user)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPasswordHash(in.Password, user.PasswordHash) || !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if auth.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, &user, in.Password)
	}
	return &user, nil
}

// rehash upgrades a hash made with an old cost. Failure only costs the upgrade.
func (s *userService) rehash(ctx context.Context, user *models.User, password string) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return
	}
	_, err = s.db.Collection(usersCollection).UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{"$set": bson.M{"password": hash}})
	if err != nil {
		zap.L().Warn("failed to upgrade password hash", zap.String("user_id", user.ID.String()), zap.Error(err))
		return
	}
	user.PasswordHash = hash
}

func (s *userService) FindByID(ctx context.Context, userID utils.SixID) (*models.User, error) {
	var user models.User
	if err := findOne(ctx, s.db.Collection(usersCollection), "user", bson.M{"_id": userID, "deleted": false}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *userService) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	filter := bson.M{"username": validation.NormalizeUsername(username), "deleted": false}
	if err := findOne(ctx, s.db.Collection(usersCollection), "user", filter, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// updateUser applies update to the actor's row and returns the new document.
func (s *userService) updateUser(ctx context.Context, userID utils.SixID, update bson.M) (*models.User, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.User
	err := s.db.Collection(usersCollection).FindOneAndUpdate(ctx, bson.M{"_id": userID, "deleted": false}, update, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound("user")
	}
	if err != nil {
		if verr := uniqueViolation(err); verr != nil {
			return nil, verr
		}
		return nil, fmt.Errorf("failed to update user %s: %w", userID.String(), err)
	}
	return &updated, nil
}

// UpdateSettings replaces the profile fields. A username change stamps
// username_changed_at, which starts the next cooldown.
func (s *userService) UpdateSettings(ctx context.Context, actor *models.User, in *validation.SettingsInput) (*models.User, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	cooldown := s.configSvc.UsernameCooldown(ctx)
	if err := s.validator.UpdateSettings(ctx, actor, in, cooldown); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	set := bson.M{
		"name":              in.Name,
		"show_phone":        in.ShowPhone,
		"show_email":        in.ShowEmail,
		"preferred_contact": models.ContactMethod(in.PreferredContact),
		"updated_at":        now,
	}
	if in.PreferredContact == "" {
		set["preferred_contact"] = models.ContactMessage
	}
	unset := bson.M{}
	if in.Username != "" && in.Username != actor.Username {
		set["username"] = in.Username
		set["username_changed_at"] = now
	}
	optional := map[string]any{"phone": in.Phone, "postcode": in.Postcode}
	for field, value := range optional {
		if value == "" {
			unset[field] = ""
		} else {
			set[field] = value
		}
	}
	if dob := in.BirthDate(); dob != nil {
		set["date_of_birth"] = *dob
	} else {
		unset["date_of_birth"] = ""
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	updated, err := s.updateUser(ctx, actor.ID, update)
	if err != nil {
		return nil, err
	}
	if updated.Username != actor.Username {
		zap.L().Info("username changed", zap.String("user_id", actor.ID.String()), zap.String("from", actor.Username), zap.String("to", updated.Username))
	}
	return updated, nil
}

func (s *userService) ChangePassword(ctx context.Context, actor *models.User, in *validation.PasswordInput) error {
	if actor == nil {
		return ErrForbidden
	}
	if err := s.validator.ChangePassword(actor, in); err != nil {
		return err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	updated, err := s.updateUser(ctx, actor.ID, bson.M{"$set": bson.M{"password": hash, "updated_at": time.Now().UTC()}})
	if err != nil {
		return err
	}
	s.sendEmail(ctx, updated, TemplatePasswordChanged)
	return nil
}

func (s *userService) UpdateNotificationPreferences(ctx context.Context, actor *models.User, in *validation.NotificationPreferencesInput) (*models.User, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	if err := s.validator.NotificationPreferences(in); err != nil {
		return nil, err
	}
	return s.updateUser(ctx, actor.ID, bson.M{"$set": bson.M{
		"notification_preferences": in.Preferences(),
		"updated_at":               time.Now().UTC(),
	}})
}

// SetActive toggles whether a user may sign in and post. Admin only.
func (s *userService) SetActive(ctx context.Context, actor *models.User, userID utils.SixID, active bool) (*models.User, error) {
	if err := policy.Check("admin.users", policy.Admin.Manage(actor)); err != nil {
		return nil, err
	}
	updated, err := s.updateUser(ctx, userID, bson.M{"$set": bson.M{"is_active": active, "updated_at": time.Now().UTC()}})
	if err != nil {
		return nil, err
	}
	zap.L().Info("user activation changed", zap.String("user_id", userID.String()), zap.Bool("active", active), zap.String("admin_id", actor.ID.String()))
	return updated, nil
}

// List pages through all users, newest first. Admin only.
func (s *userService) List(ctx context.Context, actor *models.User, limit int, cursor string) ([]models.User, string, error) {
	if err := policy.Check("admin.users", policy.Admin.Manage(actor)); err != nil {
		return nil, "", err
	}
	limit = PageSize(limit)
	filter := bson.M{"deleted": false}
	applyCursor(filter, "created_at", cursor)
	opts := options.Find().SetSort(descending("created_at")).SetLimit(int64(limit + 1))

	cur, err := s.db.Collection(usersCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list users: %w", err)
	}
	users := []models.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, "", fmt.Errorf("failed to decode users: %w", err)
	}
	next := ""
	if len(users) > limit {
		last := users[limit-1]
		next = EncodeCursor(last.CreatedAt, last.ID)
		users = users[:limit]
	}
	return users, next, nil
}
