// Package github is a minimal client for the GitHub REST API, covering the
// calls the repository-connection flow needs: the authenticated user, their
// repository listing, and single-repository metadata.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.github.com"

// ErrBadCredentials is returned when GitHub rejects the access token
// (revoked or expired). The repository service maps it to the
// requires-reconnect signal instead of an error response.
var ErrBadCredentials = errors.New("github: bad credentials")

// Repository is the portion of GitHub's repository object we unmarshal.
type Repository struct {
	Name          string   `json:"name"`
	FullName      string   `json:"full_name"`
	HTMLURL       string   `json:"html_url"`
	DefaultBranch string   `json:"default_branch"`
	Private       bool     `json:"private"`
	Language      string   `json:"language"`
	Topics        []string `json:"topics"`
	StarsCount    int      `json:"stargazers_count"`
	ForksCount    int      `json:"forks_count"`
}

// User is the portion of GitHub's /user response we care about.
type User struct {
	Login     string `json:"login"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// Client talks to the GitHub REST API with a per-request access token.
//
// A single shared limiter keeps the whole process under GitHub's secondary
// rate limits regardless of how many users sync at once.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

// NewClient creates a Client with a 10-second request timeout.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    defaultBaseURL,
		// ~5000 requests/hour is GitHub's authenticated budget; staying at
		// one per second keeps bursts of syncs comfortably inside it.
		limiter: rate.NewLimiter(rate.Limit(1), 10),
	}
}

// NewClientWithBaseURL creates a Client pointed at a different API root.
// Tests use this with an httptest server.
func NewClientWithBaseURL(baseURL string) *Client {
	c := NewClient()
	c.baseURL = baseURL
	return c
}

// get performs an authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, token, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("github: waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("github: building request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github: requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrBadCredentials
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("github: %s: %w", path, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("github: %s returned status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("github: decoding %s response: %w", path, err)
	}
	return nil
}

// ErrNotFound is wrapped into every 404 response error.
var ErrNotFound = errors.New("github: not found")

// IsNotFound reports whether err is a GitHub 404.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// GetUser fetches the authenticated user's profile. Also serves as the
// token-validity probe after an OAuth exchange.
func (c *Client) GetUser(ctx context.Context, token string) (*User, error) {
	var u User
	if err := c.get(ctx, token, "/user", &u); err != nil {
		return nil, err
	}
	if u.Login == "" {
		return nil, fmt.Errorf("github: /user returned no login")
	}
	return &u, nil
}

// ListRepositories fetches one page of the authenticated user's
// repositories, most recently updated first.
func (c *Client) ListRepositories(ctx context.Context, token string, page, perPage int) ([]Repository, error) {
	path := fmt.Sprintf("/user/repos?sort=updated&page=%d&per_page=%d", page, perPage)
	var repos []Repository
	if err := c.get(ctx, token, path, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// GetRepository fetches a single repository's metadata by owner and name.
func (c *Client) GetRepository(ctx context.Context, token, owner, name string) (*Repository, error) {
	var repo Repository
	if err := c.get(ctx, token, fmt.Sprintf("/repos/%s/%s", owner, name), &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}
