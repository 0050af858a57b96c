package api

import (
	"net/http"

	"github.com/Domenick1991/flightdesk/internal/service/booking"
	"github.com/Domenick1991/flightdesk/internal/service/flights"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type FlightHandler struct {
	service  flights.FlightUseCase
	bookings booking.BookingUseCase
	logger   *zap.Logger
}

func NewFlightHandler(service flights.FlightUseCase, bookings booking.BookingUseCase, log *zap.Logger) *FlightHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &FlightHandler{service: service, bookings: bookings, logger: log}
}

// Register mounts the public reads on router and the admin routes behind auth.
func (h *FlightHandler) Register(router *gin.RouterGroup, auth gin.HandlerFunc) {
	router.GET("", h.list)
	router.GET("/:id", h.get)

	admin := router.Group("", auth, RequireAdmin())
	admin.POST("", h.create)
	admin.PUT("/:id", h.update)
	admin.DELETE("/:id", h.delete)
	admin.GET("/:id/bookings", h.listBookings)
}

func (h *FlightHandler) list(c *gin.Context) {
	filter, err := flightFilter(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	flights, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, flights)
}

func (h *FlightHandler) get(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	flight, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, flight)
}

func (h *FlightHandler) create(c *gin.Context) {
	var req flights.FlightInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	flight, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, flight)
}

func (h *FlightHandler) update(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	var req flights.FlightUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	flight, err := h.service.Update(c.Request.Context(), id, req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, flight)
}

func (h *FlightHandler) delete(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *FlightHandler) listBookings(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	bookings, err := h.bookings.ListFlightBookings(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, bookings)
}
