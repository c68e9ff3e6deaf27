package group

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"servicehub/internal/domain"
	"servicehub/internal/middleware"
	"servicehub/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	customerOnly := middleware.RequireRole(string(domain.RoleCustomer))
	brokerOnly := middleware.RequireRole(string(domain.RoleBroker))

	rg.POST("/group-requests", customerOnly, h.CreateRequest)
	rg.GET("/group-requests", h.ListRequests)
	rg.POST("/group-requests/:id/accept", brokerOnly, h.AcceptRequest)
	rg.POST("/group-requests/:id/decline", brokerOnly, h.DeclineRequest)
	rg.POST("/group-requests/:id/cancel", h.CancelRequest)
	rg.POST("/group-requests/:id/complete", customerOnly, h.CompleteRequest)
}

func (h *Handler) CreateRequest(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "skill_id, provider_count and description are required")
		return
	}
	req.CustomerID = c.GetInt64("user_id")

	g, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"request": g})
}

// ListRequests is role-aware: brokers see the pending requests they
// can act on, everyone else sees their own requests.
func (h *Handler) ListRequests(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var (
		list []domain.GroupRequest
		err  error
	)
	if domain.UserRole(c.GetString("role")) == domain.RoleBroker {
		list, err = h.service.ListForBroker(c.Request.Context(), userID)
	} else {
		list, err = h.service.ListForCustomer(c.Request.Context(), userID)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"requests": list})
}

func (h *Handler) AcceptRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req AcceptGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "provider_ids is required")
		return
	}

	g, bookings, err := h.service.Accept(c.Request.Context(), id,
		c.GetInt64("user_id"), domain.UserRole(c.GetString("role")), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"request": g, "bookings": bookings})
}

func (h *Handler) DeclineRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	g, err := h.service.Decline(c.Request.Context(), id,
		c.GetInt64("user_id"), domain.UserRole(c.GetString("role")))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"request": g})
}

func (h *Handler) CancelRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	g, bookings, err := h.service.Cancel(c.Request.Context(), id,
		c.GetInt64("user_id"), domain.UserRole(c.GetString("role")))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"request": g, "cancelled_bookings": bookings})
}

func (h *Handler) CompleteRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	g, bookings, err := h.service.Complete(c.Request.Context(), id, c.GetInt64("user_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"request": g, "completed_bookings": bookings})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid request ID")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch err {
	case ErrValidation:
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid group request input")
	case ErrNotFound:
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "Group request not found")
	case ErrConflict:
		response.Error(c, http.StatusConflict, "CONFLICT", "Group request is not available, retry with fresh state")
	case ErrForbidden:
		response.Error(c, http.StatusForbidden, "FORBIDDEN", "You are not permitted to perform this action")
	default:
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
