package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/returnordie/til-i-allt-sub001/internal/api/middleware"
	"github.com/returnordie/til-i-allt-sub001/internal/models"
	"github.com/returnordie/til-i-allt-sub001/internal/services"
	"github.com/returnordie/til-i-allt-sub001/internal/validation"
)

// RestCatalogHandler serves the category tree and postcode lookups.
type RestCatalogHandler struct {
	categories services.ICategoryService
	postcodes  services.IPostcodeService
}

func NewRestCatalogHandler(categories services.ICategoryService, postcodes services.IPostcodeService) *RestCatalogHandler {
	return &RestCatalogHandler{categories: categories, postcodes: postcodes}
}

// NavCategories handles GET /v1/nav/categories
func (h *RestCatalogHandler) NavCategories(c *gin.Context) {
	tree, err := h.categories.NavTree(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tree})
}

// SearchPostcodes handles GET /v1/postcodes/search?q=
func (h *RestCatalogHandler) SearchPostcodes(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	results, err := h.postcodes.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		renderError(c, err)
		return
	}
	type item struct {
		models.Postcode
		Label string `json:"label"`
	}
	out := make([]item, 0, len(results))
	for _, p := range results {
		out = append(out, item{Postcode: p, Label: p.Label()})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// ListCategories handles GET /v1/admin/categories?section=
func (h *RestCatalogHandler) ListCategories(c *gin.Context) {
	list, err := h.categories.List(c.Request.Context(), models.Section(c.Query("section")))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// CreateCategory handles POST /v1/admin/categories
func (h *RestCatalogHandler) CreateCategory(c *gin.Context) {
	var in validation.CategoryInput
	if !bindBody(c, &in) {
		return
	}
	cat, err := h.categories.Create(c.Request.Context(), middleware.Actor(c), &in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cat)
}

// UpdateCategory handles PUT /v1/admin/categories/:id
func (h *RestCatalogHandler) UpdateCategory(c *gin.Context) {
	id, ok := pathID(c, "id", "category")
	if !ok {
		return
	}
	var in validation.CategoryInput
	if !bindBody(c, &in) {
		return
	}
	cat, err := h.categories.Update(c.Request.Context(), middleware.Actor(c), id, &in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, cat)
}

// DeleteCategory handles DELETE /v1/admin/categories/:id
func (h *RestCatalogHandler) DeleteCategory(c *gin.Context) {
	id, ok := pathID(c, "id", "category")
	if !ok {
		return
	}
	if err := h.categories.Delete(c.Request.Context(), middleware.Actor(c), id); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
