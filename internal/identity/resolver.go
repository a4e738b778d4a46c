package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"clinichat/pkg/types"
)

// profile is the account service's response shape for GET /api/users/me.
type profile struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	RoleDto  struct {
		Name string `json:"name"`
	} `json:"roleDto"`
}

// Resolver turns an authenticated account profile into a chat identity.
// The role string is parsed here exactly once; downstream code only ever
// sees types.Role values.
type Resolver struct {
	client  *http.Client
	baseURL string
	token   string
}

// NewResolver targets the account service at baseURL (no trailing slash).
// token is optional; when set it is sent as a bearer credential.
func NewResolver(baseURL, token string) *Resolver {
	return &Resolver{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		token:   token,
	}
}

// Resolve fetches GET /api/users/me and maps it to the channel identity:
// userId is the account email, displayName the full name, role the upper-cased
// roleDto name. Any failure is returned to the caller, which leaves the chat
// feature inert rather than crashing.
func (r *Resolver) Resolve(ctx context.Context) (types.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/api/users/me", nil)
	if err != nil {
		return types.Identity{}, fmt.Errorf("build identity request: %w", err)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return types.Identity{}, fmt.Errorf("fetch identity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Identity{}, fmt.Errorf("fetch identity: unexpected status %d", resp.StatusCode)
	}

	var p profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return types.Identity{}, fmt.Errorf("decode identity response: %w", err)
	}

	role, err := types.ParseRole(p.RoleDto.Name)
	if err != nil {
		return types.Identity{}, fmt.Errorf("account role %q: %w", p.RoleDto.Name, err)
	}

	id := types.Identity{
		UserID:      p.Email,
		DisplayName: p.FullName,
		Role:        role,
	}
	if err := id.Validate(); err != nil {
		return types.Identity{}, fmt.Errorf("resolved identity invalid: %w", err)
	}
	return id, nil
}
