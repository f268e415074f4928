package guesttoken

import (
	"context"

	"github.com/astro-web3/superset-guest-relay/internal/domain/guesttoken"
	"github.com/astro-web3/superset-guest-relay/pkg/metrics"
	"github.com/astro-web3/superset-guest-relay/pkg/tracer"
	"go.opentelemetry.io/otel/attribute"
)

type Service interface {
	IssueGuestToken(ctx context.Context, accessToken string) (string, error)
}

type service struct {
	domainService guesttoken.Service
}

func NewService(domainService guesttoken.Service) Service {
	return &service{
		domainService: domainService,
	}
}

func (s *service) IssueGuestToken(ctx context.Context, accessToken string) (string, error) {
	ctx, span := tracer.Start(ctx, "app.guesttoken.IssueGuestToken")
	defer span.End()

	span.SetAttributes(
		attribute.String("access_token.prefix", tokenPrefix(accessToken)),
	)

	token, err := s.domainService.Issue(ctx, accessToken)
	metrics.GuestTokensTotal.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		tracer.Fail(span, err)
		return "", err
	}

	span.SetAttributes(attribute.Bool("guest_token.issued", true))
	return token, nil
}

const tokenPrefixLength = 8

func tokenPrefix(token string) string {
	if len(token) > tokenPrefixLength {
		return token[:tokenPrefixLength] + "..."
	}
	return "***"
}
