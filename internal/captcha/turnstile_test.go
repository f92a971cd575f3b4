package captcha

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/returnordie/til-i-allt-sub001/internal/config"
)

func TestHumanToken(t *testing.T) {
	v := NewTurnstileVerifier(&config.Config{JwtSecret: "secret"})

	token, err := v.GenerateHumanToken("", "1.2.3.4", "fp", "spa", time.Minute)
	require.NoError(t, err)
	assert.True(t, v.ValidateHumanToken(token, "1.2.3.4", "fp", "spa"))
	assert.False(t, v.ValidateHumanToken(token, "1.2.3.5", "fp", "spa"))
	assert.False(t, v.ValidateHumanToken(token, "1.2.3.4", "other", "spa"))

	expired, err := v.GenerateHumanToken("", "1.2.3.4", "fp", "spa", -time.Minute)
	require.NoError(t, err)
	assert.False(t, v.ValidateHumanToken(expired, "1.2.3.4", "fp", "spa"))

	foreign := NewTurnstileVerifier(&config.Config{JwtSecret: "other"})
	assert.False(t, foreign.ValidateHumanToken(token, "1.2.3.4", "fp", "spa"))
}

func TestVerify(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(SiteVerifyResponse{Success: got["response"] == "good"})
	}))
	defer srv.Close()

	v := NewTurnstileVerifier(&config.Config{CloudflareTurnstileSecretKey: "s3cr3t", CloudflareSiteVerifyURL: srv.URL})
	ok, err := v.Verify(context.Background(), "good", "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "s3cr3t", got["secret"])
	assert.Equal(t, "1.2.3.4", got["remoteip"])

	ok, err = v.Verify(context.Background(), "bad", "")
	require.NoError(t, err)
	assert.False(t, ok)

	unconfigured := NewTurnstileVerifier(&config.Config{})
	ok, err = unconfigured.Verify(context.Background(), "anything", "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerify_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	v := NewTurnstileVerifier(&config.Config{CloudflareTurnstileSecretKey: "s", CloudflareSiteVerifyURL: srv.URL})
	ok, err := v.Verify(context.Background(), "token", "")
	assert.Error(t, err)
	assert.False(t, ok)
}
