package guesttoken

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/astro-web3/superset-guest-relay/internal/infra/superset"
	"github.com/astro-web3/superset-guest-relay/pkg/logger"
)

type Service interface {
	// Issue runs the whole chain for one caller. Any failing step aborts it.
	Issue(ctx context.Context, callerToken string) (string, error)
}

type service struct {
	sessions    superset.SessionFactory
	credentials CredentialSource
	policy      Policy
	identity    Identity
}

func NewService(
	sessions superset.SessionFactory,
	credentials CredentialSource,
	policy Policy,
	identity Identity,
) Service {
	return &service{
		sessions:    sessions,
		credentials: credentials,
		policy:      policy,
		identity:    identity.withDefaults(),
	}
}

func (s *service) Issue(ctx context.Context, callerToken string) (string, error) {
	// One session per call: the CSRF token and its cookies stay together and
	// are dropped when Issue returns.
	session, err := s.sessions.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to open superset session: %w", err)
	}

	accessToken, err := s.credentials.AccessToken(ctx, session, callerToken)
	if err != nil {
		logUpstreamFailure(ctx, "Error getting Superset access token", err)
		return "", fmt.Errorf("%w: %w", ErrUpstreamAuth, err)
	}

	csrfToken, err := session.FetchCSRFToken(ctx, accessToken)
	if err != nil {
		logUpstreamFailure(ctx, "Error getting Superset CSRF token", err)
		return "", fmt.Errorf("%w: %w", ErrUpstreamCSRF, err)
	}

	grant, err := s.policy.Resolve(ctx, callerToken)
	if err != nil {
		logger.ErrorContext(ctx, "failed to resolve guest grant", slog.String("error", err.Error()))
		return "", fmt.Errorf("%w: %w", ErrGuestToken, err)
	}

	req := &superset.GuestTokenRequest{
		User:      s.identity.newUser(),
		Resources: grant.Resources,
		RLS:       grant.RLS,
	}
	if req.Resources == nil {
		req.Resources = []superset.Resource{}
	}
	if req.RLS == nil {
		req.RLS = []superset.RLSRule{}
	}

	token, err := session.IssueGuestToken(ctx, accessToken, csrfToken, req)
	if err != nil {
		logUpstreamFailure(ctx, "Error generating guest token", err)
		return "", fmt.Errorf("%w: %w", ErrGuestToken, err)
	}

	logger.DebugContext(ctx, "guest token issued",
		slog.String("guest_username", req.User.Username),
		slog.Int("resources", len(req.Resources)),
		slog.Int("rls_rules", len(req.RLS)),
	)

	return token, nil
}

func logUpstreamFailure(ctx context.Context, msg string, err error) {
	attrs := []slog.Attr{slog.String("error", err.Error())}

	var apiErr *superset.APIError
	if errors.As(err, &apiErr) {
		attrs = append(attrs,
			slog.String("endpoint", apiErr.Endpoint),
			slog.Int("status", apiErr.StatusCode),
			slog.String("response", apiErr.Body),
		)
	}

	logger.ErrorContext(ctx, msg, attrs...)
}
