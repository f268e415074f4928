package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/astro-web3/superset-guest-relay/internal/app/guesttoken"
	domain "github.com/astro-web3/superset-guest-relay/internal/domain/guesttoken"
	"github.com/astro-web3/superset-guest-relay/pkg/logger"
	"github.com/astro-web3/superset-guest-relay/pkg/tracer"
	"github.com/gin-gonic/gin"
)

type guestTokenRequest struct {
	AccessToken string `json:"accessToken"`
}

type Handler struct {
	appService guesttoken.Service
}

func NewHandler(appService guesttoken.Service) *Handler {
	return &Handler{
		appService: appService,
	}
}

// IssueGuestToken relays the caller's access token to Superset. The token is
// not validated here; an absent one simply fails upstream.
func (h *Handler) IssueGuestToken(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "transport.http.IssueGuestToken")
	defer span.End()

	var req guestTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.WarnContext(ctx, "invalid guest token request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	token, err := h.appService.IssueGuestToken(ctx, req.AccessToken)
	if err != nil {
		tracer.Fail(span, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": domain.PublicMessage(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}
