package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/outboxlab/eventgate/internal/analytics"
)

func eventsReportHandler(repo *analytics.Repository) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		offset, _ := strconv.Atoi(c.QueryParam("offset"))

		rows, err := repo.ListRecent(c.Request().Context(), c.QueryParam("event_name"), limit, offset)
		if err != nil {
			c.Logger().Errorf("events report failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{"count": len(rows), "results": rows})
	}
}
