package handlers

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/returnordie/til-i-allt-sub001/internal/api/middleware"
	"github.com/returnordie/til-i-allt-sub001/internal/models"
	"github.com/returnordie/til-i-allt-sub001/internal/services"
	"github.com/returnordie/til-i-allt-sub001/internal/utils"
	"github.com/returnordie/til-i-allt-sub001/internal/validation"
)

// ImageURLs turns stored object keys into client URLs.
type ImageURLs interface {
	PublicURL(key string) string
}

// RestAdHandler handles REST requests for ads.
type RestAdHandler struct {
	adService services.IAdService
	urls      ImageURLs
}

func NewRestAdHandler(adService services.IAdService, urls ImageURLs) *RestAdHandler {
	return &RestAdHandler{adService: adService, urls: urls}
}

type imageView struct {
	models.AdImage
	URL      string `json:"url"`
	ThumbURL string `json:"thumb_url,omitempty"`
}

// adView shadows Ad.Images with URL-carrying entries.
type adView struct {
	*models.Ad
	Images []imageView `json:"images"`
}

func (h *RestAdHandler) view(ad *models.Ad) adView {
	v := adView{Ad: ad, Images: make([]imageView, 0, len(ad.Images))}
	for _, img := range ad.Images {
		iv := imageView{AdImage: img, URL: h.urls.PublicURL(img.Key)}
		if img.ThumbKey != "" {
			iv.ThumbURL = h.urls.PublicURL(img.ThumbKey)
		}
		v.Images = append(v.Images, iv)
	}
	return v
}

// SearchAds handles GET /v1/ads
func (h *RestAdHandler) SearchAds(c *gin.Context) {
	limit, cursor := page(c)
	q := services.AdQuery{
		Section:      models.Section(c.Query("section")),
		CategorySlug: c.Query("category"),
		ListingType:  c.Query("listing_type"),
		Text:         strings.TrimSpace(c.Query("q")),
		AnyStatus:    c.Query("status") == "any",
		Limit:        limit,
		Cursor:       cursor,
	}
	if raw := c.Query("user_id"); raw != "" {
		id, err := utils.ParseSixID(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
			return
		}
		q.UserID = &id
	}

	ads, next, err := h.adService.Search(c.Request.Context(), middleware.Actor(c), q)
	if err != nil {
		renderError(c, err)
		return
	}
	views := make([]adView, 0, len(ads))
	for i := range ads {
		views = append(views, h.view(&ads[i]))
	}
	paged(c, views, next)
}

// GetAd handles GET /v1/ads/:id
func (h *RestAdHandler) GetAd(c *gin.Context) {
	id, ok := pathID(c, "id", "ad")
	if !ok {
		return
	}
	ad, err := h.adService.Find(c.Request.Context(), id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(ad))
}

// CreateAd handles POST /v1/ads, as JSON or multipart with images.
func (h *RestAdHandler) CreateAd(c *gin.Context) {
	var in validation.AdInput
	uploads, ok := bindAd(c, &in)
	if !ok {
		return
	}
	ad, err := h.adService.Create(c.Request.Context(), middleware.Actor(c), &in, uploads)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.view(ad))
}

// UpdateAd handles PUT /v1/ads/:id
func (h *RestAdHandler) UpdateAd(c *gin.Context) {
	id, ok := pathID(c, "id", "ad")
	if !ok {
		return
	}
	var in validation.AdUpdateInput
	uploads, ok := bindAd(c, &in)
	if !ok {
		return
	}
	ad, err := h.adService.Update(c.Request.Context(), middleware.Actor(c), id, &in, uploads)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(ad))
}

// DeleteAd handles DELETE /v1/ads/:id
func (h *RestAdHandler) DeleteAd(c *gin.Context) {
	id, ok := pathID(c, "id", "ad")
	if !ok {
		return
	}
	if err := h.adService.Delete(c.Request.Context(), middleware.Actor(c), id); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkSold handles POST /v1/ads/:id/sold
func (h *RestAdHandler) MarkSold(c *gin.Context) {
	id, ok := pathID(c, "id", "ad")
	if !ok {
		return
	}
	ad, err := h.adService.MarkSold(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(ad))
}

// ExtendAd handles POST /v1/ads/:id/extend
func (h *RestAdHandler) ExtendAd(c *gin.Context) {
	id, ok := pathID(c, "id", "ad")
	if !ok {
		return
	}
	var in validation.ExtendInput
	if !bindBody(c, &in) {
		return
	}
	ad, err := h.adService.Extend(c.Request.Context(), middleware.Actor(c), id, &in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(ad))
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// bindAd reads an ad form. Multipart requests carry images under "images" or "images[]".
func bindAd(c *gin.Context, out any) ([]validation.Upload, bool) {
	if !isMultipart(c) {
		return nil, bindBody(c, out)
	}
	if err := c.ShouldBind(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid form data"})
		return nil, false
	}
	switch in := out.(type) {
	case *validation.AdInput:
		in.Attributes = formAttributes(c)
	case *validation.AdUpdateInput:
		in.Attributes = formAttributes(c)
	}
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid form data"})
		return nil, false
	}
	var uploads []validation.Upload
	for _, field := range []string{"images", "images[]"} {
		for _, fh := range form.File[field] {
			uploads = append(uploads, toUpload(fh))
		}
	}
	return uploads, true
}

func toUpload(fh *multipart.FileHeader) validation.Upload {
	return validation.Upload{
		Filename:    fh.Filename,
		Size:        fh.Size,
		ContentType: fh.Header.Get("Content-Type"),
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// formAttributes decodes the JSON-encoded "attributes" form field; malformed input is ignored.
func formAttributes(c *gin.Context) map[string]any {
	raw := c.PostForm("attributes")
	if raw == "" {
		return nil
	}
	var attrs map[string]any
	if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
		return nil
	}
	return attrs
}
