package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"civicservice-be/captcha"
	"civicservice-be/metrics"
	"civicservice-be/middlewares"
	"civicservice-be/models"
	"civicservice-be/services"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	geojson "github.com/paulmach/go.geojson"
)

const handlerTimeout = 10 * time.Second

// RequestController exposes service requests over HTTP
type RequestController struct {
	Service *services.RequestService
	Captcha captcha.Verifier
}

func NewRequestController(service *services.RequestService, verifier captcha.Verifier) *RequestController {
	return &RequestController{Service: service, Captcha: verifier}
}

func handlerContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), handlerTimeout)
}

func internalError(c *gin.Context, err error, msg string) {
	log.WithError(err).Error(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
}

func requestID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request ID"})
		return uuid.Nil, false
	}
	return id, true
}

type createRequestInput struct {
	Category     *models.Category `json:"category" binding:"required"`
	Description  string           `json:"description" binding:"required,min=10,max=2000"`
	Address      string           `json:"address" binding:"required,max=500"`
	Latitude     *float64         `json:"latitude,omitempty" binding:"omitempty,min=-90,max=90"`
	Longitude    *float64         `json:"longitude,omitempty" binding:"omitempty,min=-180,max=180"`
	CaptchaToken string           `json:"captchaToken"`
}

// CreateRequest handles a new submission from a citizen or a guest.
// Guests must pass the captcha.
func (rc *RequestController) CreateRequest(c *gin.Context) {
	var input createRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := handlerContext(c)
	defer cancel()

	actor := middlewares.ActorFrom(c)
	if !actor.Authenticated() && rc.Captcha != nil {
		if !rc.Captcha.Verify(ctx, input.CaptchaToken, captcha.ActionSubmitRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "CAPTCHA verification failed. Please try again."})
			return
		}
	}

	view, err := rc.Service.CreateRequest(ctx, models.CreateRequestInput{
		Category:    *input.Category,
		Description: strings.TrimSpace(input.Description),
		Address:     strings.TrimSpace(input.Address),
		Latitude:    input.Latitude,
		Longitude:   input.Longitude,
	}, actor)
	if err != nil {
		internalError(c, err, "Failed to create service request")
		return
	}

	metrics.RequestsCreatedTotal.WithLabelValues(view.Category.String()).Inc()
	c.Header("Location", "/api/requests/"+view.ID.String())
	c.JSON(http.StatusCreated, view)
}

// parseListQuery reads status, category, sort, page and pageSize. Bad
// numbers fall back to defaults; unknown enum names are rejected.
func parseListQuery(c *gin.Context) (models.ListQuery, bool) {
	q := models.ListQuery{Sort: c.Query("sort")}

	if s := c.Query("status"); s != "" && s != "all" {
		status, err := models.ParseStatus(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
			return q, false
		}
		q.Status = &status
	}
	if s := c.Query("category"); s != "" && s != "all" {
		category, err := models.ParseCategory(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category"})
			return q, false
		}
		q.Category = &category
	}

	q.Page = queryInt(c, "page", 1)
	q.PageSize = queryInt(c, "pageSize", services.DefaultPageSize)
	return q, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return fallback
	}
	return n
}

// ListRequests handles the public, filterable listing
func (rc *RequestController) ListRequests(c *gin.Context) {
	q, ok := parseListQuery(c)
	if !ok {
		return
	}

	ctx, cancel := handlerContext(c)
	defer cancel()

	result, err := rc.Service.ListRequests(ctx, q, middlewares.ActorFrom(c))
	if err != nil {
		internalError(c, err, "Failed to list service requests")
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListMyRequests handles the signed-in user's own submissions
func (rc *RequestController) ListMyRequests(c *gin.Context) {
	q, ok := parseListQuery(c)
	if !ok {
		return
	}

	ctx, cancel := handlerContext(c)
	defer cancel()

	result, err := rc.Service.ListMyRequests(ctx, q, middlewares.ActorFrom(c))
	if err != nil {
		if errors.Is(err, services.ErrViewerRequired) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}
		internalError(c, err, "Failed to list user service requests")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (rc *RequestController) GetRequest(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	ctx, cancel := handlerContext(c)
	defer cancel()

	view, err := rc.Service.GetRequest(ctx, id, middlewares.ActorFrom(c))
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Service request not found"})
			return
		}
		internalError(c, err, "Failed to retrieve service request")
		return
	}
	c.JSON(http.StatusOK, view)
}

type updateStatusInput struct {
	Status *models.Status `json:"status" binding:"required"`
}

// UpdateStatus is restricted to staff by the router
func (rc *RequestController) UpdateStatus(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	var input updateStatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := handlerContext(c)
	defer cancel()

	view, err := rc.Service.UpdateStatus(ctx, id, *input.Status)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Service request not found"})
			return
		}
		internalError(c, err, "Failed to update service request status")
		return
	}

	metrics.StatusChangesTotal.WithLabelValues(view.Status.String()).Inc()
	c.JSON(http.StatusOK, view)
}

func (rc *RequestController) GetStatistics(c *gin.Context) {
	ctx, cancel := handlerContext(c)
	defer cancel()

	stats, err := rc.Service.GetStatistics(ctx)
	if err != nil {
		internalError(c, err, "Failed to compute statistics")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Upvote records "I'm affected too". 404 for an unknown request, 409 when
// the caller already voted.
func (rc *RequestController) Upvote(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	ctx, cancel := handlerContext(c)
	defer cancel()

	actor := middlewares.ActorFrom(c)
	added, err := rc.Service.Upvote(ctx, id, actor)
	if err != nil {
		internalError(c, err, "Failed to upvote service request")
		return
	}

	view, err := rc.Service.GetRequest(ctx, id, actor)
	switch {
	case errors.Is(err, services.ErrNotFound):
		metrics.UpvotesTotal.WithLabelValues("missing").Inc()
		c.JSON(http.StatusNotFound, gin.H{"error": "Service request not found"})
	case err != nil:
		internalError(c, err, "Failed to retrieve service request")
	case !added:
		metrics.UpvotesTotal.WithLabelValues("duplicate").Inc()
		c.JSON(http.StatusConflict, gin.H{"error": "You have already upvoted this request"})
	default:
		metrics.UpvotesTotal.WithLabelValues("added").Inc()
		c.JSON(http.StatusOK, gin.H{"upvoteCount": view.UpvoteCount, "hasUpvoted": view.HasUpvoted})
	}
}

func (rc *RequestController) RemoveUpvote(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	ctx, cancel := handlerContext(c)
	defer cancel()

	actor := middlewares.ActorFrom(c)
	removed, err := rc.Service.RemoveUpvote(ctx, id, actor)
	if err != nil {
		internalError(c, err, "Failed to remove upvote")
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "Upvote not found"})
		return
	}
	metrics.UpvotesTotal.WithLabelValues("removed").Inc()

	view, err := rc.Service.GetRequest(ctx, id, actor)
	if err != nil {
		internalError(c, err, "Failed to retrieve service request")
		return
	}
	c.JSON(http.StatusOK, gin.H{"upvoteCount": view.UpvoteCount, "hasUpvoted": view.HasUpvoted})
}

// MapFeed returns located requests as a GeoJSON FeatureCollection
func (rc *RequestController) MapFeed(c *gin.Context) {
	q, ok := parseListQuery(c)
	if !ok {
		return
	}

	ctx, cancel := handlerContext(c)
	defer cancel()

	requests, err := rc.Service.MappedRequests(ctx, models.RequestFilter{Status: q.Status, Category: q.Category})
	if err != nil {
		internalError(c, err, "Failed to build map feed")
		return
	}

	fc := geojson.NewFeatureCollection()
	for _, r := range requests {
		f := geojson.NewPointFeature([]float64{*r.Longitude, *r.Latitude})
		f.ID = r.ID.String()
		f.SetProperty("category", r.Category.String())
		f.SetProperty("status", r.Status.String())
		f.SetProperty("address", r.Address)
		f.SetProperty("createdAt", r.CreatedAt)
		fc.AddFeature(f)
	}

	body, err := fc.MarshalJSON()
	if err != nil {
		internalError(c, err, "Failed to encode map feed")
		return
	}
	c.Data(http.StatusOK, "application/geo+json", body)
}
