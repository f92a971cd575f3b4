package storage

import (
	"regexp"
	"testing"

	"github.com/returnordie/til-i-allt-sub001/internal/config"
	"github.com/returnordie/til-i-allt-sub001/internal/utils"
	"github.com/stretchr/testify/assert"
)

func TestAdImageKey(t *testing.T) {
	id := utils.SixID{1, 2, 3, 4, 5, 6}
	key := AdImageKey(id, "JPG")
	assert.Regexp(t, regexp.MustCompile(`^ads/`+id.String()+`/[0-9a-f-]{36}\.jpg$`), key)
	assert.NotEqual(t, key, AdImageKey(id, "jpg"))
}

func TestThumbKey(t *testing.T) {
	assert.Equal(t, "ads/X/abc_thumb.jpg", ThumbKey("ads/X/abc.png"))
	assert.Equal(t, "ads/X.d/abc_thumb.jpg", ThumbKey("ads/X.d/abc"))
}

func TestPublicURL(t *testing.T) {
	s := &s3Storage{cfg: &config.Config{ImageBaseS3URL: "https://cdn.example.is/"}}
	assert.Equal(t, "https://cdn.example.is/ads/a.jpg", s.PublicURL("ads/a.jpg"))
	s.cfg.ImageBaseS3URL = ""
	assert.Equal(t, "ads/a.jpg", s.PublicURL("ads/a.jpg"))
}
