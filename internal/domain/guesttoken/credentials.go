package guesttoken

import (
	"context"
	"fmt"

	"github.com/astro-web3/superset-guest-relay/internal/infra/superset"
)

const (
	StrategyPassthrough    = "passthrough"
	StrategyServiceAccount = "service_account"
)

// CredentialSource decides which upstream access token authorizes the CSRF
// and guest-token calls of one session.
type CredentialSource interface {
	AccessToken(ctx context.Context, session superset.Session, callerToken string) (string, error)
}

// NewCredentialSource maps a configured strategy name to its implementation.
// An empty name selects passthrough.
func NewCredentialSource(strategy, username, password string) (CredentialSource, error) {
	switch strategy {
	case "", StrategyPassthrough:
		return passthrough{}, nil
	case StrategyServiceAccount:
		return &serviceAccount{username: username, password: password}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

// passthrough reuses the caller's token as-is. It is not validated here;
// Superset is the authority.
type passthrough struct{}

func (passthrough) AccessToken(_ context.Context, _ superset.Session, callerToken string) (string, error) {
	return callerToken, nil
}

type serviceAccount struct {
	username string
	password string
}

func (s *serviceAccount) AccessToken(ctx context.Context, session superset.Session, _ string) (string, error) {
	return session.Login(ctx, s.username, s.password)
}
