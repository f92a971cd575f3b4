package models

// APIType separates overrides for the public REST surface from the internal service API.
type APIType string

const (
	APITypeREST    APIType = "REST"
	APITypeService APIType = "SERVICE"
)

// RateLimitConfig holds token bucket parameters.
type RateLimitConfig struct {
	BucketSize      int `bson:"bucket_size" json:"bucket_size"`
	TokenRefillRate int `bson:"token_refill_rate" json:"token_refill_rate"` // tokens per second
}

// APIEndpointConfig overrides rate limits for one route, keyed "METHOD /v1/path"
// (or a method name for the service API). Stored in api_endpoints_config.
type APIEndpointConfig struct {
	Base          `bson:",inline"`
	Type          APIType          `bson:"type" json:"type"`
	Endpoint      string           `bson:"endpoint" json:"endpoint"`
	AuthRequired  bool             `bson:"auth_required" json:"auth_required"`
	RateLimitSoft *RateLimitConfig `bson:"rate_limit_soft,omitempty" json:"rate_limit_soft,omitempty"`
	RateLimitHard *RateLimitConfig `bson:"rate_limit_hard,omitempty" json:"rate_limit_hard,omitempty"`
}
