package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/calloway/backlot/internal/observability"
	"github.com/rs/zerolog"
)

// Credential is one CRM API credential. Credentials are tried in
// configuration order until one succeeds.
type Credential struct {
	Label  string
	APIKey string
}

// Options holds CRM client configuration
type Options struct {
	BaseURL     string
	Credentials []Credential
	HTTPClient  *http.Client
}

// Client is the external CRM client
type Client struct {
	baseURL     string
	credentials []Credential
	http        *http.Client
	logger      zerolog.Logger
}

// Contact is one CRM contact
type Contact struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Company string `json:"company,omitempty"`
	Title   string `json:"title,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// Group is one CRM contact group
type Group struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`
}

// NewClient creates a CRM client
func NewClient(opts Options, logger zerolog.Logger) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("crm base url is required")
	}
	if len(opts.Credentials) == 0 {
		return nil, fmt.Errorf("at least one crm credential is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		baseURL:     opts.BaseURL,
		credentials: opts.Credentials,
		http:        httpClient,
		logger:      logger,
	}, nil
}

// SearchContacts searches contacts by free text
func (c *Client) SearchContacts(ctx context.Context, query string, limit int) ([]Contact, error) {
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))

	var out struct {
		Contacts []Contact `json:"contacts"`
	}
	if err := c.get(ctx, "/contacts", params, &out); err != nil {
		return nil, err
	}
	return out.Contacts, nil
}

// GetContact fetches one contact by id
func (c *Client) GetContact(ctx context.Context, id string) (*Contact, error) {
	if id == "" {
		return nil, fmt.Errorf("contact id is required")
	}

	var out Contact
	if err := c.get(ctx, "/contacts/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListGroups lists the contact groups
func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	var out struct {
		Groups []Group `json:"groups"`
	}
	if err := c.get(ctx, "/groups", nil, &out); err != nil {
		return nil, err
	}
	return out.Groups, nil
}

// get performs a GET with ordered credential failover. Only failures the
// next credential could plausibly cure advance the rotation: 401/403, 5xx
// and transport errors. Any other 4xx is the CRM answering on the current
// credential and returns as an ordinary error.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var lastErr error

	for i, cred := range c.credentials {
		if i > 0 {
			observability.RecordCRMCredentialFallback()
			c.logger.Warn().
				Str("credential", cred.Label).
				Err(lastErr).
				Msg("CRM credential failed, trying next")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to build crm request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+cred.APIKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("crm returned status %d", resp.StatusCode)
			if resp.StatusCode == http.StatusUnauthorized ||
				resp.StatusCode == http.StatusForbidden ||
				resp.StatusCode >= 500 {
				continue
			}
			return lastErr
		}
		if readErr != nil {
			lastErr = fmt.Errorf("failed to read crm response: %w", readErr)
			continue
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to parse crm response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("all crm credentials failed: %w", lastErr)
}
