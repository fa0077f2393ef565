package booking

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/middleware"
	"marketplace/internal/pkg/response"
	"marketplace/internal/pkg/validator"

	"github.com/gin-gonic/gin"
)

var statusByCode = map[string]int{
	"VALIDATION_ERROR":       http.StatusBadRequest,
	"NOT_FOUND":              http.StatusNotFound,
	"SELF_BOOKING_FORBIDDEN": http.StatusUnprocessableEntity,
	"INVALID_SCHEDULE":       http.StatusUnprocessableEntity,
	"SLOT_CONFLICT":          http.StatusConflict,
	"DAILY_QUOTA_EXCEEDED":   http.StatusTooManyRequests,
	"INSUFFICIENT_FUNDS":     http.StatusPaymentRequired,
	"INVALID_TRANSITION":     http.StatusConflict,
	"UNAUTHORIZED":           http.StatusForbidden,
	"ALREADY_DELETED":        http.StatusConflict,
	"NOT_DELETED":            http.StatusConflict,
	"NOT_SOFT_DELETED":       http.StatusConflict,
	"UNAVAILABLE":            http.StatusServiceUnavailable,
}

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	validator.RegisterBindings()
	return &Handler{service: service}
}

// RegisterRoutes mounts the booking endpoints. createLimit guards creation
// and may be nil.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, createLimit gin.HandlerFunc) {
	bookings := rg.Group("/bookings")
	if createLimit != nil {
		bookings.POST("", createLimit, h.CreateBooking)
	} else {
		bookings.POST("", h.CreateBooking)
	}
	bookings.GET("", h.ListBookings)
	bookings.GET("/:id/ledger", h.ListLedger)
	bookings.PATCH("/:id/status", h.UpdateStatus)
	bookings.DELETE("/:id", h.SoftDelete)
	bookings.POST("/:id/restore", middleware.AdminOnly(), h.Restore)
	bookings.DELETE("/:id/hard", middleware.AdminOnly(), h.HardDelete)
}

func (h *Handler) CreateBooking(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	if actor.Role != domain.RoleCustomer {
		response.Error(c, http.StatusForbidden, "UNAUTHORIZED", "Only customers can create bookings")
		return
	}

	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	req.CustomerID = actor.ID

	res, err := h.service.CreateBooking(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, res)
}

func (h *Handler) ListBookings(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	f, err := parseListFilter(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	views, page, err := h.service.ListBookings(c.Request.Context(), actor, f)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Page(c, http.StatusOK, views, page)
}

func (h *Handler) ListLedger(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := bookingID(c)
	if !ok {
		return
	}

	entries, err := h.service.ListLedger(c.Request.Context(), id, actor)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, entries)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := bookingID(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	b, err := h.service.UpdateStatus(c.Request.Context(), id, req.Status, actor)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, b)
}

func (h *Handler) SoftDelete(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := bookingID(c)
	if !ok {
		return
	}

	var req SoftDeleteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
			return
		}
	}

	b, err := h.service.SoftDelete(c.Request.Context(), id, actor, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, BookingView{Booking: b, Deletion: b.Deletion()})
}

func (h *Handler) Restore(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := bookingID(c)
	if !ok {
		return
	}

	b, err := h.service.Restore(c.Request.Context(), id, actor)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, b)
}

func (h *Handler) HardDelete(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := bookingID(c)
	if !ok {
		return
	}

	if err := h.service.HardDelete(c.Request.Context(), id, actor); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": id, "deleted": true})
}

func actorOrAbort(c *gin.Context) (domain.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return domain.Actor{}, false
	}
	return actor, true
}

func bookingID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid booking ID")
		return 0, false
	}
	return id, true
}

func parseListFilter(c *gin.Context) (ListFilter, error) {
	var f ListFilter
	f.Status = domain.BookingStatus(c.Query("status"))

	var err error
	if f.From, err = parseQueryTime(c.Query("from")); err != nil {
		return f, errors.New("from must be RFC3339 or YYYY-MM-DD")
	}
	if f.To, err = parseQueryTime(c.Query("to")); err != nil {
		return f, errors.New("to must be RFC3339 or YYYY-MM-DD")
	}
	if v := c.Query("page"); v != "" {
		if f.Page, err = strconv.Atoi(v); err != nil {
			return f, errors.New("page must be a number")
		}
	}
	if v := c.Query("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			return f, errors.New("limit must be a number")
		}
	}
	if v := c.Query("include_deleted"); v != "" {
		if f.IncludeDeleted, err = strconv.ParseBool(v); err != nil {
			return f, errors.New("include_deleted must be a boolean")
		}
	}
	return f, nil
}

func parseQueryTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, slotDateLayout} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, errors.New("bad time")
}

func writeError(c *gin.Context, err error) {
	code := Code(err)
	status, ok := statusByCode[code]
	if !ok {
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL", "Internal server error")
		return
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		response.ErrorWithDetails(c, status, code, verr.Error(), verr.Violations)
		return
	}
	var terr *TransitionError
	if errors.As(err, &terr) {
		response.ErrorWithDetails(c, status, code, terr.Error(), gin.H{
			"current_status":   terr.Current,
			"requested_status": terr.To,
		})
		return
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	response.Error(c, status, code, err.Error())
}
