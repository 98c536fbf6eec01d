package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ovaphlow/pitchfork/service-identity/internal/account/entity"
)

// AdminConfig configures the provider admin API client.
type AdminConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timeout      time.Duration
}

// AdminClient calls the provider's account management REST API. Requests are
// authorized with an OAuth2 client credentials token when credentials are
// configured.
type AdminClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  *zap.SugaredLogger
}

// NewAdminClient builds the client. httpClient may be nil.
func NewAdminClient(ctx context.Context, cfg AdminConfig, httpClient *http.Client, logger *zap.SugaredLogger) *AdminClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.ClientID != "" && cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		// token fetches and API calls both go through the caller's transport
		httpClient = cc.Client(context.WithValue(ctx, oauth2.HTTPClient, httpClient))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AdminClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		timeout: timeout,
		logger:  logger,
	}
}

type lookupResponse struct {
	Users []struct {
		LocalID      string `json:"localId"`
		Email        string `json:"email"`
		PasswordHash string `json:"passwordHash"`
	} `json:"users"`
}

type providerError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *AdminClient) FetchProfile(ctx context.Context, subjectID string) (*entity.Principal, error) {
	var out lookupResponse
	status, err := c.post(ctx, "/accounts:lookup", map[string]any{"localId": []string{subjectID}}, &out)
	if err != nil {
		if status == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrSubjectNotFound, subjectID)
		}
		return nil, err
	}
	for _, u := range out.Users {
		if u.LocalID == subjectID {
			return &entity.Principal{SubjectID: u.LocalID, Email: u.Email, PasswordHash: u.PasswordHash}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSubjectNotFound, subjectID)
}

func (c *AdminClient) DeleteSubject(ctx context.Context, subjectID string) error {
	_, err := c.post(ctx, "/accounts:delete", map[string]any{"localId": subjectID}, nil)
	return err
}

func (c *AdminClient) SendPasswordResetLink(ctx context.Context, email string) error {
	_, err := c.post(ctx, "/accounts:sendOobCode", map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}, nil)
	return err
}

// post sends a JSON request bounded by the client timeout and decodes the
// response into out. The HTTP status is returned alongside transport errors
// so callers can map it.
func (c *AdminClient) post(ctx context.Context, path string, body any, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrProvider, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: read %s: %w", ErrProvider, path, err)
	}
	if resp.StatusCode >= 300 {
		var pe providerError
		msg := resp.Status
		if json.Unmarshal(data, &pe) == nil && pe.Error.Message != "" {
			msg = pe.Error.Message
		}
		c.logger.Debugw("identity provider rejected request", "path", path, "status", resp.StatusCode, "message", msg)
		return resp.StatusCode, fmt.Errorf("%w: %s: %s", ErrProvider, path, msg)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decode %s: %w", ErrProvider, path, err)
		}
	}
	return resp.StatusCode, nil
}
