package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/finerr"
)

var api = sonic.Config{UseNumber: true}.Froze()

// apiError is the Daraja error envelope.
type apiError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// client talks to the Daraja REST API. The OAuth token is cached until
// shortly before it expires.
type client struct {
	httpClient *http.Client
	baseURL    string
	key        string
	secret     string
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func (c *client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.key+":"+c.secret)))
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: mpesa oauth: %v", finerr.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: mpesa oauth: %v", finerr.ErrProviderUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: mpesa oauth returned %d", finerr.ErrProviderUnavailable, resp.StatusCode)
	}

	var tr tokenResponse
	if err := api.Unmarshal(b, &tr); err != nil || tr.AccessToken == "" {
		return "", fmt.Errorf("%w: mpesa oauth: unreadable token response", finerr.ErrProviderUnavailable)
	}
	ttl, err := strconv.Atoi(tr.ExpiresIn)
	if err != nil || ttl <= 0 {
		ttl = 3599
	}
	c.token = tr.AccessToken
	// refresh a minute early
	c.expiresAt = c.now().Add(time.Duration(ttl)*time.Second - time.Minute)
	return c.token, nil
}

func (c *client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// postJSON sends in and decodes the 200 body into out. Non-200 replies
// come back as *httpError.
func (c *client) postJSON(ctx context.Context, path string, in, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	body, err := api.Marshal(in)
	if err != nil {
		return fmt.Errorf("mpesa: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: mpesa %s: %v", finerr.ErrProviderUnavailable, path, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: mpesa %s: %v", finerr.ErrProviderUnavailable, path, err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized {
			c.invalidateToken()
		}
		he := &httpError{Status: resp.StatusCode}
		_ = api.Unmarshal(b, &he.Body)
		return he
	}
	if err := api.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%w: mpesa %s: unreadable response", finerr.ErrProviderUnavailable, path)
	}
	return nil
}

type httpError struct {
	Status int
	Body   apiError
}

func (e *httpError) Error() string {
	return fmt.Sprintf("mpesa http %d: %s %s", e.Status, e.Body.ErrorCode, e.Body.ErrorMessage)
}

// classify turns a Daraja HTTP failure into the provider error taxonomy.
func (e *httpError) classify() error {
	if e.Status >= 500 || e.Status == http.StatusUnauthorized || e.Status == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", finerr.ErrProviderUnavailable, e)
	}
	return fmt.Errorf("%w: %v", finerr.ErrProviderRejected, e)
}
