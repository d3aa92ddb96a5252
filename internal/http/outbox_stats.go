package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/outboxlab/eventgate/internal/outbox"
)

func outboxStatsHandler(store outbox.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		counts, err := store.CountByStatus(ctx)
		if err != nil {
			c.Logger().Errorf("outbox counts failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		oldest, err := store.OldestPending(ctx)
		if err != nil {
			c.Logger().Errorf("oldest pending failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		resp := map[string]any{
			"pending": counts[outbox.StatusPending],
			"sent":    counts[outbox.StatusSent],
			"failed":  counts[outbox.StatusFailed],
		}
		if oldest != nil {
			resp["oldest_pending_id"] = oldest.ID
			resp["oldest_pending_age_seconds"] = int64(time.Since(oldest.CreatedAt).Seconds())
		}

		return c.JSON(http.StatusOK, resp)
	}
}

func outboxByEventHandler(store outbox.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		entries, err := store.FindByEventID(c.Request().Context(), c.Param("event_id"))
		if err != nil {
			c.Logger().Errorf("outbox audit lookup failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		out := make([]map[string]any, 0, len(entries))
		for _, e := range entries {
			out = append(out, map[string]any{
				"id":         e.ID,
				"email_type": e.EmailType,
				"recipient":  e.RecipientEmail,
				"status":     e.Status.String(),
				"attempts":   e.Attempts,
				"created_at": e.CreatedAt,
				"sent_at":    e.SentAt,
			})
		}
		return c.JSON(http.StatusOK, map[string]any{"count": len(out), "results": out})
	}
}
