package broadcast

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/broadcast-engine/internal/handler"
	"github.com/jwalitptl/broadcast-engine/internal/middleware"
	"github.com/jwalitptl/broadcast-engine/internal/model"
	"github.com/jwalitptl/broadcast-engine/internal/service/broadcast"
)

type Handler struct {
	service *broadcast.Service
}

func NewHandler(service *broadcast.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	broadcasts := r.Group("/broadcasts")
	{
		broadcasts.POST("", h.CreateBroadcast)
		broadcasts.GET("", h.ListBroadcasts)
		broadcasts.GET("/:id", h.GetBroadcast)
		broadcasts.GET("/:id/progress", h.GetProgress)
		broadcasts.POST("/:id/start", h.StartBroadcast)
		broadcasts.POST("/:id/pause", h.PauseBroadcast)
		broadcasts.POST("/:id/resume", h.ResumeBroadcast)
	}
}

func (h *Handler) CreateBroadcast(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing tenant context"))
		return
	}

	var req model.CreateBroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	created, err := h.service.CreateBroadcast(c.Request.Context(), tenantID, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(created))
}

func (h *Handler) GetBroadcast(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing tenant context"))
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid broadcast ID"))
		return
	}

	b, err := h.service.GetBroadcast(c.Request.Context(), tenantID, id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(b))
}

func (h *Handler) ListBroadcasts(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing tenant context"))
		return
	}

	var status *model.BroadcastStatus
	if s := c.Query("status"); s != "" {
		st := model.BroadcastStatus(s)
		status = &st
	}

	limit := 20
	offset := 0
	if v, err := parseIntQuery(c, "limit"); err == nil && v > 0 {
		limit = v
	}
	if v, err := parseIntQuery(c, "offset"); err == nil && v >= 0 {
		offset = v
	}

	broadcasts, err := h.service.ListBroadcasts(c.Request.Context(), tenantID, status, limit, offset)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(broadcasts))
}

func (h *Handler) GetProgress(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing tenant context"))
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid broadcast ID"))
		return
	}

	b, err := h.service.GetBroadcast(c.Request.Context(), tenantID, id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"status":            b.Status,
		"stats":             b.Stats,
		"fraction_complete": b.FractionComplete(),
	}))
}

func (h *Handler) StartBroadcast(c *gin.Context) {
	h.lifecycleAction(c, h.service.StartBroadcast)
}

func (h *Handler) PauseBroadcast(c *gin.Context) {
	h.lifecycleAction(c, h.service.PauseBroadcast)
}

func (h *Handler) ResumeBroadcast(c *gin.Context) {
	h.lifecycleAction(c, h.service.ResumeBroadcast)
}

func (h *Handler) lifecycleAction(c *gin.Context, action func(ctx context.Context, tenantID, id uuid.UUID) error) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing tenant context"))
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid broadcast ID"))
		return
	}

	if err := action(c.Request.Context(), tenantID, id); err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, handler.NewSuccessResponse(nil))
}

func parseIntQuery(c *gin.Context, name string) (int, error) {
	return strconv.Atoi(c.Query(name))
}
