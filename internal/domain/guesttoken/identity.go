package guesttoken

import (
	"strings"

	"github.com/astro-web3/superset-guest-relay/internal/infra/superset"
	"github.com/google/uuid"
)

const (
	DefaultUsernamePrefix = "app_user_"
	DefaultFirstName      = "Embedded"
	DefaultLastName       = "User"

	usernameSuffixLength = 12
)

// Identity describes the synthetic user guest tokens are minted for.
type Identity struct {
	UsernamePrefix string
	FirstName      string
	LastName       string
}

func (i Identity) withDefaults() Identity {
	if i.UsernamePrefix == "" {
		i.UsernamePrefix = DefaultUsernamePrefix
	}
	if i.FirstName == "" {
		i.FirstName = DefaultFirstName
	}
	if i.LastName == "" {
		i.LastName = DefaultLastName
	}
	return i
}

// newUser returns a user with a fresh random username. Collisions are
// unlikely but not ruled out.
func (i Identity) newUser() superset.GuestUser {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:usernameSuffixLength]
	return superset.GuestUser{
		Username:  i.UsernamePrefix + suffix,
		FirstName: i.FirstName,
		LastName:  i.LastName,
	}
}
