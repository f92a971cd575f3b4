package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/returnordie/til-i-allt-sub001/internal/config"
	"github.com/returnordie/til-i-allt-sub001/internal/models"
	"github.com/returnordie/til-i-allt-sub001/internal/utils"
)

func TestConfigService_Fallbacks(t *testing.T) {
	cfg := testConfig()
	svc := staticConfigService(cfg, nil)
	ctx := context.Background()

	assert.Equal(t, config.Days(30), svc.UsernameCooldown(ctx))
	assert.Equal(t, config.Days(30), svc.ReviewWindow(ctx))
	assert.Equal(t, []int{14, 30}, svc.AdExtendAllowedDays(ctx))
	assert.Equal(t, "Til i allt", svc.GetString(ctx, "APP_NAME", ""))
	assert.Equal(t, 7, svc.GetInt(ctx, "missing", 7))
}

func TestConfigService_Overrides(t *testing.T) {
	svc := staticConfigService(testConfig(), map[string]interface{}{
		KeyUsernameChangeDays:  int32(7),
		KeyReviewWindowDays:    float64(14),
		KeyAdExtendAllowedDays: bson.A{int32(7), int64(60)},
		"csv_days":             "1, 2,3",
		"bad_list":             bson.A{"x"},
		"flag":                 true,
		"timeout":              int64(90),
	})
	ctx := context.Background()

	assert.Equal(t, config.Days(7), svc.UsernameCooldown(ctx))
	assert.Equal(t, config.Days(14), svc.ReviewWindow(ctx))
	assert.Equal(t, []int{7, 60}, svc.AdExtendAllowedDays(ctx))
	assert.Equal(t, []int{1, 2, 3}, svc.GetIntSlice(ctx, "csv_days", nil))
	assert.Equal(t, []int{9}, svc.GetIntSlice(ctx, "bad_list", []int{9}))
	assert.True(t, svc.GetBool(ctx, "flag", false))
	assert.Equal(t, 90*time.Second, svc.GetDuration(ctx, "timeout", 0))
	assert.Equal(t, "fallback", svc.GetString(ctx, "flag", "fallback"))
}

func TestConfigService_StoreAndReload(t *testing.T) {
	db := utils.SetupTestDB(t, "testdb_config_service", configCollection, apiConfigCollection)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := NewConfigService(ctx, db, testConfig(), nil)
	require.NoError(t, svc.SetConfigValue(ctx, KeyUsernameChangeDays, 10, false))
	require.NoError(t, svc.SetConfigValue(ctx, "support_email", "hjalp@example.is", true))
	assert.Equal(t, config.Days(10), svc.UsernameCooldown(ctx))

	_, err := db.Collection(apiConfigCollection).InsertOne(ctx, models.APIEndpointConfig{
		Base:          models.NewBase(),
		Type:          models.APITypeREST,
		Endpoint:      "/v1/auth/login",
		RateLimitHard: &models.RateLimitConfig{BucketSize: 5, TokenRefillRate: 1},
	})
	require.NoError(t, err)

	fresh := NewConfigService(ctx, db, testConfig(), nil)
	assert.Equal(t, config.Days(10), fresh.UsernameCooldown(ctx))

	public, err := fresh.GetAllPublic(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hjalp@example.is", public["support_email"])
	assert.NotContains(t, public, KeyUsernameChangeDays)
	assert.Equal(t, "Til i allt", public["APP_NAME"])

	epc, err := fresh.GetAPIEndpointConfig(ctx, models.APITypeREST, "/v1/auth/login", true)
	require.NoError(t, err)
	require.NotNil(t, epc, "authenticated lookup falls back to the guest entry")
	assert.Equal(t, 5, epc.RateLimitHard.BucketSize)
}
