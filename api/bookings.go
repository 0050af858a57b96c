package api

import (
	"net/http"

	"github.com/Domenick1991/flightdesk/internal/domain"
	"github.com/Domenick1991/flightdesk/internal/service/booking"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type BookingHandler struct {
	service booking.BookingUseCase
	logger  *zap.Logger
}

type setStatusRequest struct {
	Status domain.BookingStatus `json:"status" binding:"required"`
}

func NewBookingHandler(service booking.BookingUseCase, log *zap.Logger) *BookingHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &BookingHandler{service: service, logger: log}
}

// Register expects router to be behind Authenticate.
func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.GET("", RequireAdmin(), h.list)
	router.GET("/my-bookings", h.listMine)
	router.GET("/:id", h.get)
	router.PUT("/:id", h.update)
	router.DELETE("/:id", h.cancel)
	router.PATCH("/:id/status", RequireAdmin(), h.setStatus)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req booking.CreateBookingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	details, err := h.service.CreateBooking(c.Request.Context(), requesterFrom(c).UserID, req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, details)
}

func (h *BookingHandler) list(c *gin.Context) {
	bookings, err := h.service.ListBookings(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, bookings)
}

func (h *BookingHandler) listMine(c *gin.Context) {
	bookings, err := h.service.ListMyBookings(c.Request.Context(), requesterFrom(c).UserID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, bookings)
}

func (h *BookingHandler) get(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	details, err := h.service.GetBooking(c.Request.Context(), id, requesterFrom(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *BookingHandler) update(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	var patch booking.BookingPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}

	details, err := h.service.UpdateBooking(c.Request.Context(), id, requesterFrom(c), patch)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *BookingHandler) cancel(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	details, err := h.service.CancelBooking(c.Request.Context(), id, requesterFrom(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *BookingHandler) setStatus(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	status, err := domain.ParseBookingStatus(string(req.Status))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	details, err := h.service.AdminSetStatus(c.Request.Context(), id, status)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, details)
}
