package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/flightdesk/internal/service/booking"
	"github.com/Domenick1991/flightdesk/internal/service/flights"
	"github.com/Domenick1991/flightdesk/internal/service/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Services struct {
	Flights  flights.FlightUseCase
	Bookings booking.BookingUseCase
	Users    users.UserUseCase
	Tokens   TokenVerifier
}

// NewRouter wires every HTTP route of the API onto a fresh gin engine.
func NewRouter(svc Services, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log))

	startedAt := time.Now()
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(startedAt).Round(time.Second).String(),
		})
	})

	auth := Authenticate(svc.Tokens)
	apiGroup := router.Group("/api")

	userHandler := NewUserHandler(svc.Users, log)
	userHandler.RegisterAuth(apiGroup.Group("/auth"), auth)
	userHandler.RegisterAdmin(apiGroup.Group("/users", auth, RequireAdmin()))

	NewFlightHandler(svc.Flights, svc.Bookings, log).Register(apiGroup.Group("/flights"), auth)
	NewBookingHandler(svc.Bookings, log).Register(apiGroup.Group("/bookings", auth))

	return router
}
