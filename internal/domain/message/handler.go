package message

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aura-health/aura/internal/platform/auth"
	"github.com/aura-health/aura/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/messages", h.Send)
	api.GET("/conversations", h.Conversations)
	api.GET("/conversations/:peer", h.ListConversation)
}

type sendRequest struct {
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
}

func (h *Handler) Send(c echo.Context) error {
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.svc.Send(c.Request().Context(), auth.UserID(c), req.RecipientID, req.Content)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) Conversations(c echo.Context) error {
	convs, err := h.svc.Conversations(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, convs)
}

func (h *Handler) ListConversation(c echo.Context) error {
	peer := c.Param("peer")
	if peer == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "peer is required")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListConversation(c.Request().Context(), auth.UserID(c), peer, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
