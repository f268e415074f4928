package superset

import (
	"errors"
	"fmt"
)

const (
	loginPath      = "/api/v1/security/login"
	csrfTokenPath  = "/api/v1/security/csrf_token/"
	guestTokenPath = "/api/v1/security/guest_token/"

	providerDB = "db"
)

// ResourceTypeDashboard is the only resource type Superset embeds today.
const ResourceTypeDashboard = "dashboard"

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Provider string `json:"provider"`
	Refresh  bool   `json:"refresh"`
}

type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type CSRFTokenResponse struct {
	Result string `json:"result"`
}

// GuestUser is the synthetic identity a guest token is minted for.
type GuestUser struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type Resource struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// RLSRule is forwarded verbatim. A zero Dataset applies the clause to every
// dataset the guest can reach.
type RLSRule struct {
	Dataset int    `json:"dataset,omitempty"`
	Clause  string `json:"clause"`
}

// GuestTokenRequest must serialize Resources and RLS as arrays even when empty.
type GuestTokenRequest struct {
	User      GuestUser  `json:"user"`
	Resources []Resource `json:"resources"`
	RLS       []RLSRule  `json:"rls"`
}

type GuestTokenResponse struct {
	Token string `json:"token"`
}

var ErrMissingField = errors.New("response is missing expected field")

// APIError is a non-2xx answer from Superset.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("superset %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}
