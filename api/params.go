package api

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Domenick1991/flightdesk/internal/domain"
	"github.com/Domenick1991/flightdesk/internal/repository"
	"github.com/gin-gonic/gin"
)

func idParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Invalid("invalid id")
	}
	return id, nil
}

func flightFilter(c *gin.Context) (repository.FlightFilter, error) {
	filter := repository.FlightFilter{
		Origin:      c.Query("origin"),
		Destination: c.Query("destination"),
	}
	if date := c.Query("date"); date != "" {
		d, err := time.Parse("2006-01-02", date)
		if err != nil {
			return filter, domain.Invalid(fmt.Sprintf("date must be YYYY-MM-DD, got %q", date))
		}
		filter.Date = d
	}
	return filter, nil
}
