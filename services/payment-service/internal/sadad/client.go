package sadad

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var ErrNoRedirect = errors.New("sadad: checkout answered without a redirect")

// Client submits signed checkout forms server-to-server.
type Client struct {
	sessionURL string
	http       *http.Client
}

func NewClient(sessionURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		sessionURL: sessionURL,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Enabled reports whether a session endpoint is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.sessionURL != ""
}

// CreateCheckout posts fields and returns the hosted page URL the customer should visit.
// The gateway may answer with a 3xx Location or a JSON body carrying redirect_url.
func (c *Client) CreateCheckout(ctx context.Context, fields map[string]string) (string, error) {
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sessionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		loc, err := resp.Location()
		if err != nil {
			return "", ErrNoRedirect
		}
		return loc.String(), nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sadad: checkout status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out struct {
		RedirectURL string `json:"redirect_url"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.RedirectURL == "" {
		return "", ErrNoRedirect
	}
	return out.RedirectURL, nil
}
