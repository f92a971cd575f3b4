package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/returnordie/til-i-allt-sub001/internal/config"
	"github.com/returnordie/til-i-allt-sub001/internal/models"
)

// Runtime keys that override the env defaults.
const (
	KeyUsernameChangeDays  = "username_change_days"
	KeyAdExtendAllowedDays = "ad_extend_allowed_days"
	KeyReviewWindowDays    = "review_window_days"
)

// IConfigService reads runtime configuration stored in Mongo with env fallbacks.
type IConfigService interface {
	GetAllPublic(ctx context.Context) (map[string]interface{}, error)
	Get(ctx context.Context, key string) (interface{}, error)
	GetInt(ctx context.Context, key string, defaultValue int) int
	GetIntSlice(ctx context.Context, key string, defaultValue []int) []int
	GetString(ctx context.Context, key string, defaultValue string) string
	GetBool(ctx context.Context, key string, defaultValue bool) bool
	GetFloat64(ctx context.Context, key string, defaultValue float64) float64
	GetDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration
	Load(ctx context.Context) error
	SubscribeToChanges(ctx context.Context) error
	SetConfigValue(ctx context.Context, key string, value interface{}, isPublic bool) error
	GetAPIEndpointConfig(ctx context.Context, apiType models.APIType, endpoint string, isAuthenticated bool) (*models.APIEndpointConfig, error)

	UsernameCooldown(ctx context.Context) time.Duration
	ReviewWindow(ctx context.Context) time.Duration
	AdExtendAllowedDays(ctx context.Context) []int
}

const (
	configCollection    = "configuration"
	apiConfigCollection = "api_endpoints_config"
	configUpdateChannel = "config_updates"
)

type configService struct {
	db       *mongo.Database
	cfg      *config.Config
	rdb      *redis.Client
	cache    map[string]interface{}
	apiCache map[string]*models.APIEndpointConfig
	mutex    sync.RWMutex
}

// NewConfigService loads the stored configuration and, when Redis is
// available, keeps it fresh by listening on the update channel until ctx ends.
func NewConfigService(ctx context.Context, db *mongo.Database, initialCfg *config.Config, rdb *redis.Client) IConfigService {
	s := &configService{
		db:       db,
		cfg:      initialCfg,
		rdb:      rdb,
		cache:    make(map[string]interface{}),
		apiCache: make(map[string]*models.APIEndpointConfig),
	}
	if err := s.Load(ctx); err != nil {
		zap.L().Warn("failed to load config from DB, using env defaults", zap.Error(err))
	}
	if rdb != nil {
		go func() {
			if err := s.SubscribeToChanges(ctx); err != nil {
				zap.L().Error("config pub/sub listener stopped", zap.Error(err))
			}
		}()
	}
	return s
}

// ConfigEntry represents a document in the configuration collection.
type ConfigEntry struct {
	Key    string      `bson:"key"`
	Value  interface{} `bson:"value"`
	Public bool        `bson:"public"`
}

func apiCacheKey(apiType models.APIType, endpoint string, auth bool) string {
	return fmt.Sprintf("%s#%s#%t", apiType, endpoint, auth)
}

// Load replaces both caches with the stored entries.
func (s *configService) Load(ctx context.Context) error {
	cursor, err := s.db.Collection(configCollection).Find(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to query config collection: %w", err)
	}
	var entries []ConfigEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return fmt.Errorf("failed to decode config entries: %w", err)
	}
	newCache := make(map[string]interface{}, len(entries))
	for _, e := range entries {
		newCache[e.Key] = e.Value
	}

	newAPICache := make(map[string]*models.APIEndpointConfig)
	apiCursor, err := s.db.Collection(apiConfigCollection).Find(ctx, bson.M{})
	if err != nil {
		zap.L().Warn("failed to query API endpoint configs", zap.Error(err))
	} else {
		var apiEntries []models.APIEndpointConfig
		if err := apiCursor.All(ctx, &apiEntries); err != nil {
			zap.L().Warn("failed to decode API endpoint configs", zap.Error(err))
		}
		for i := range apiEntries {
			e := &apiEntries[i]
			newAPICache[apiCacheKey(e.Type, e.Endpoint, e.AuthRequired)] = e
		}
	}

	s.mutex.Lock()
	s.cache = newCache
	s.apiCache = newAPICache
	s.mutex.Unlock()

	zap.L().Info("configuration loaded", zap.Int("entries", len(newCache)), zap.Int("api_endpoints", len(newAPICache)))
	return nil
}

// GetAllPublic returns the entries marked public plus APP_NAME.
func (s *configService) GetAllPublic(ctx context.Context) (map[string]interface{}, error) {
	cursor, err := s.db.Collection(configCollection).Find(ctx, bson.M{"public": true})
	if err != nil {
		return nil, fmt.Errorf("failed to query public config from DB: %w", err)
	}
	var entries []ConfigEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode public config: %w", err)
	}
	public := make(map[string]interface{}, len(entries)+1)
	for _, e := range entries {
		public[e.Key] = e.Value
	}
	if _, exists := public["APP_NAME"]; !exists {
		public["APP_NAME"] = s.cfg.AppName
	}
	return public, nil
}

// Get returns the cached value, falling back to a few env-backed keys.
func (s *configService) Get(ctx context.Context, key string) (interface{}, error) {
	s.mutex.RLock()
	val, exists := s.cache[key]
	s.mutex.RUnlock()
	if exists {
		return val, nil
	}

	switch key {
	case "APP_NAME":
		return s.cfg.AppName, nil
	case KeyUsernameChangeDays:
		return s.cfg.UsernameChangeDays, nil
	case KeyReviewWindowDays:
		return s.cfg.ReviewWindowDays, nil
	case KeyAdExtendAllowedDays:
		return s.cfg.AdExtendAllowedDays, nil
	}
	return nil, fmt.Errorf("config key '%s' not found", key)
}

func (s *configService) GetString(ctx context.Context, key string, defaultValue string) string {
	val, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	if str, ok := val.(string); ok {
		return str
	}
	zap.L().Warn("config value is not a string, using default", zap.String("key", key))
	return defaultValue
}

// toInt converts the numeric types Mongo may hand back.
func toInt(val interface{}) (int, bool) {
	switch v := val.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}

func (s *configService) GetInt(ctx context.Context, key string, defaultValue int) int {
	val, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	if n, ok := toInt(val); ok {
		return n
	}
	zap.L().Warn("config value is not an integer, using default", zap.String("key", key), zap.Any("value", val))
	return defaultValue
}

// GetIntSlice accepts an array of numbers or a comma separated string.
func (s *configService) GetIntSlice(ctx context.Context, key string, defaultValue []int) []int {
	val, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	var items []interface{}
	switch v := val.(type) {
	case []int:
		return v
	case bson.A:
		items = v
	case []interface{}:
		items = v
	case string:
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) != "" {
				items = append(items, part)
			}
		}
	default:
		zap.L().Warn("config value is not a list, using default", zap.String("key", key))
		return defaultValue
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		n, ok := toInt(item)
		if !ok {
			zap.L().Warn("config list has a non-integer item, using default", zap.String("key", key))
			return defaultValue
		}
		out = append(out, n)
	}
	return out
}

func (s *configService) GetBool(ctx context.Context, key string, defaultValue bool) bool {
	val, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	if b, ok := val.(bool); ok {
		return b
	}
	zap.L().Warn("config value is not a boolean, using default", zap.String("key", key))
	return defaultValue
}

func (s *configService) GetFloat64(ctx context.Context, key string, defaultValue float64) float64 {
	val, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	switch v := val.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	}
	zap.L().Warn("config value is not numeric, using default", zap.String("key", key))
	return defaultValue
}

// GetDuration reads a value stored as seconds.
func (s *configService) GetDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	val, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	if n, ok := toInt(val); ok {
		return time.Duration(n) * time.Second
	}
	zap.L().Warn("config value is not a duration, using default", zap.String("key", key))
	return defaultValue
}

func (s *configService) UsernameCooldown(ctx context.Context) time.Duration {
	return config.Days(s.GetInt(ctx, KeyUsernameChangeDays, s.cfg.UsernameChangeDays))
}

func (s *configService) ReviewWindow(ctx context.Context) time.Duration {
	return config.Days(s.GetInt(ctx, KeyReviewWindowDays, s.cfg.ReviewWindowDays))
}

func (s *configService) AdExtendAllowedDays(ctx context.Context) []int {
	return s.GetIntSlice(ctx, KeyAdExtendAllowedDays, s.cfg.AdExtendAllowedDays)
}

// SubscribeToChanges reloads the caches on every message until ctx ends.
func (s *configService) SubscribeToChanges(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}
	pubsub := s.rdb.Subscribe(ctx, configUpdateChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", configUpdateChannel, err)
	}
	zap.L().Info("subscribed to config updates", zap.String("channel", configUpdateChannel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			zap.L().Info("config update received", zap.String("key", msg.Payload))
			if err := s.Load(ctx); err != nil {
				zap.L().Error("failed to reload config", zap.Error(err))
			}
		}
	}
}

// SetConfigValue upserts key and tells every instance to reload.
func (s *configService) SetConfigValue(ctx context.Context, key string, value interface{}, isPublic bool) error {
	_, err := s.db.Collection(configCollection).UpdateOne(ctx,
		bson.M{"key": key},
		bson.M{"$set": bson.M{"key": key, "value": value, "public": isPublic}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert config key '%s' in DB: %w", key, err)
	}

	s.mutex.Lock()
	s.cache[key] = value
	s.mutex.Unlock()

	if s.rdb != nil {
		if err := s.rdb.Publish(ctx, configUpdateChannel, key).Err(); err != nil {
			zap.L().Warn("failed to publish config update", zap.String("key", key), zap.Error(err))
		}
	}
	zap.L().Info("config value updated", zap.String("key", key))
	return nil
}

// GetAPIEndpointConfig returns the override for an endpoint, trying the guest
// entry when no authenticated one exists. nil means use defaults.
func (s *configService) GetAPIEndpointConfig(ctx context.Context, apiType models.APIType, endpoint string, isAuthenticated bool) (*models.APIEndpointConfig, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if c, ok := s.apiCache[apiCacheKey(apiType, endpoint, isAuthenticated)]; ok {
		return c, nil
	}
	if isAuthenticated {
		if c, ok := s.apiCache[apiCacheKey(apiType, endpoint, false)]; ok {
			return c, nil
		}
	}
	return nil, nil
}
