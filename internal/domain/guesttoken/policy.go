package guesttoken

import (
	"context"
	"slices"

	"github.com/astro-web3/superset-guest-relay/internal/infra/superset"
)

// Grant is what a guest token will allow: the embeddable resources and the
// row-level-security rules Superset applies on top.
type Grant struct {
	Resources []superset.Resource
	RLS       []superset.RLSRule
}

// Policy supplies the grant for a caller. The relay has no authorization logic
// of its own; implementations are the external policy input.
type Policy interface {
	Resolve(ctx context.Context, callerToken string) (*Grant, error)
}

type staticPolicy struct {
	grant Grant
}

// NewStaticPolicy returns a Policy that hands every caller the same grant.
func NewStaticPolicy(resources []superset.Resource, rls []superset.RLSRule) Policy {
	return &staticPolicy{grant: Grant{
		Resources: slices.Clone(resources),
		RLS:       slices.Clone(rls),
	}}
}

func (p *staticPolicy) Resolve(context.Context, string) (*Grant, error) {
	return &Grant{
		Resources: slices.Clone(p.grant.Resources),
		RLS:       slices.Clone(p.grant.RLS),
	}, nil
}
