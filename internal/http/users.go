package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/outboxlab/eventgate/internal/apperr"
	"github.com/outboxlab/eventgate/internal/domain/user"
	"github.com/outboxlab/eventgate/internal/service/account"
)

type registerReq struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func registerUserHandler(svc *account.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req registerReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if strings.TrimSpace(req.Email) == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "email required"})
		}

		id, err := svc.Register(c.Request().Context(), req.Email, req.FirstName, req.LastName)
		if err != nil {
			return writeCommandError(c, err)
		}

		return c.JSON(http.StatusCreated, map[string]string{"id": id})
	}
}

func getUserHandler(svc *account.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		u, err := svc.Get(c.Request().Context(), c.Param("id"))
		if err != nil {
			return writeCommandError(c, err)
		}

		return c.JSON(http.StatusOK, map[string]any{
			"id":            u.AggregateID(),
			"email":         u.Email(),
			"first_name":    u.FirstName(),
			"last_name":     u.LastName(),
			"registered_at": u.RegisteredAt(),
			"version":       u.CurrentVersion(),
		})
	}
}

type changeEmailReq struct {
	Email string `json:"email"`
}

func changeEmailHandler(svc *account.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req changeEmailReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		if err := svc.ChangeEmail(c.Request().Context(), c.Param("id"), req.Email); err != nil {
			return writeCommandError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func changePasswordHandler(svc *account.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := svc.ChangePassword(c.Request().Context(), c.Param("id")); err != nil {
			return writeCommandError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func writeCommandError(c echo.Context, err error) error {
	switch {
	case apperr.IsKind(err, apperr.KindNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	case apperr.IsKind(err, apperr.KindConcurrencyConflict):
		return c.JSON(http.StatusConflict, map[string]string{"error": "conflict, retry"})
	case errors.Is(err, user.ErrInvalidEmail),
		errors.Is(err, user.ErrAlreadyRegistered),
		errors.Is(err, user.ErrNotRegistered):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	c.Logger().Errorf("command failed: %v", err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
