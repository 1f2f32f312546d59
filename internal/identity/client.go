package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/joao-fontenele/order-service/internal/auth"
	"github.com/joao-fontenele/order-service/internal/domain"
)

// Client talks to the user service. It resolves caller credentials into
// durable owner ids and fetches owner profiles. Nothing is cached.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, client *http.Client) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: client,
	}
}

// ResolveOwner maps a credential id to the owner id it belongs to.
func (c *Client) ResolveOwner(ctx context.Context, credentialID int64) (int64, error) {
	var user domain.Profile
	url := fmt.Sprintf("%s/api/users/by-credentials-id/%d", c.baseURL, credentialID)
	if err := c.get(ctx, url, &user); err != nil {
		return 0, fmt.Errorf("resolve credentials %d: %w", credentialID, err)
	}
	if user.ID == 0 {
		return 0, fmt.Errorf("resolve credentials %d: %w", credentialID, domain.ErrOwnerNotFound)
	}
	return user.ID, nil
}

// FetchProfile returns the owner's profile or domain.ErrOwnerNotFound.
func (c *Client) FetchProfile(ctx context.Context, ownerID int64) (*domain.Profile, error) {
	var user domain.Profile
	url := fmt.Sprintf("%s/api/users/%d", c.baseURL, ownerID)
	if err := c.get(ctx, url, &user); err != nil {
		return nil, fmt.Errorf("fetch user %d: %w", ownerID, err)
	}
	return &user, nil
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if token := auth.TokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDependencyUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrOwnerNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: user service returned status %d", domain.ErrDependencyUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode user service response: %w", domain.ErrDependencyUnavailable, err)
	}
	return nil
}
