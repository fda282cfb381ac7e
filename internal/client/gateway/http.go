package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mkarpov/sshvault/internal/client/models"
	"github.com/mkarpov/sshvault/internal/common"
)

const requestTimeout = 12 * time.Second

// refresh the access token when it expires within this window, instead of
// waiting for the server to reject it
const tokenExpiryMargin = 30 * time.Second

// HTTPGateway implements Gateway over a JSON/HTTP API. It carries a bearer
// access token on authenticated requests and refreshes it from the refresh
// token when it is about to expire.
type HTTPGateway struct {
	baseURL string
	httpc   *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// NewHTTPGateway returns a gateway client for the given base URL, e.g.
// "http://127.0.0.1:8080".
func NewHTTPGateway(baseURL string) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: requestTimeout},
	}
}

func (g *HTTPGateway) Close() error {
	g.httpc.CloseIdleConnections()
	return nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (g *HTTPGateway) Register(ctx context.Context, username string, salt []byte, verifier []byte) error {
	body := map[string]any{"username": username, "salt": salt, "verifier": verifier}
	return g.do(ctx, http.MethodPost, "/api/auth/register", nil, body, nil, false)
}

func (g *HTTPGateway) GetSalt(ctx context.Context, username string) ([]byte, error) {
	var resp struct {
		Salt []byte `json:"salt"`
	}
	q := url.Values{"username": {username}}
	if err := g.do(ctx, http.MethodGet, "/api/auth/salt", q, nil, &resp, false); err != nil {
		return nil, err
	}
	return resp.Salt, nil
}

func (g *HTTPGateway) Login(ctx context.Context, username string, verifier []byte) error {
	body := map[string]any{"username": username, "verifier": verifier}
	var resp tokenResponse
	if err := g.do(ctx, http.MethodPost, "/api/auth/login", nil, body, &resp, false); err != nil {
		return err
	}
	g.mu.Lock()
	g.accessToken = resp.AccessToken
	g.refreshToken = resp.RefreshToken
	g.mu.Unlock()
	return nil
}

func (g *HTTPGateway) Ping(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := g.do(ctx, http.MethodGet, "/api/ping", nil, nil, &resp, false); err != nil {
		return err
	}
	if resp.Status != "OK" {
		return common.ErrUnavailable
	}
	return nil
}

func (g *HTTPGateway) List(ctx context.Context, owner string, page, pageSize int) (*models.ProfilePage, error) {
	q := url.Values{
		"owner":     {owner},
		"page":      {strconv.Itoa(page)},
		"page_size": {strconv.Itoa(pageSize)},
	}
	result := &models.ProfilePage{}
	if err := g.do(ctx, http.MethodGet, "/api/profiles", q, nil, result, true); err != nil {
		return nil, err
	}
	return result, nil
}

func (g *HTTPGateway) Create(ctx context.Context, p *models.SessionProfile) (*models.SessionProfile, error) {
	created := &models.SessionProfile{}
	if err := g.do(ctx, http.MethodPost, "/api/profiles", nil, p, created, true); err != nil {
		return nil, err
	}
	return created, nil
}

func (g *HTTPGateway) Update(ctx context.Context, id string, p *models.SessionProfile, expected models.ServerVersion) (*models.SessionProfile, error) {
	q := url.Values{"expected_version": {strconv.FormatInt(int64(expected), 10)}}
	updated := &models.SessionProfile{}
	if err := g.do(ctx, http.MethodPut, "/api/profiles/"+url.PathEscape(id), q, p, updated, true); err != nil {
		return nil, err
	}
	return updated, nil
}

func (g *HTTPGateway) SoftDelete(ctx context.Context, id string, deletedAt time.Time, expected models.ServerVersion) error {
	q := url.Values{
		"expected_version": {strconv.FormatInt(int64(expected), 10)},
		"deleted_at":       {deletedAt.UTC().Format(time.RFC3339Nano)},
	}
	return g.do(ctx, http.MethodDelete, "/api/profiles/"+url.PathEscape(id), q, nil, nil, true)
}

// do performs one JSON request/response exchange. Authenticated requests
// carry the bearer token, refreshed beforehand when close to expiry; an
// Unauthenticated response triggers one refresh-and-retry, mirroring the
// usual interceptor pattern.
func (g *HTTPGateway) do(ctx context.Context, method, path string, query url.Values, in, out any, authed bool) error {
	if authed {
		if err := g.refreshIfExpiring(ctx); err != nil {
			return err
		}
	}

	err := g.doOnce(ctx, method, path, query, in, out, authed)
	if authed && errorsIsAny(err, common.ErrTokenExpired, common.ErrUnauthorized) {
		if refreshErr := g.refresh(ctx); refreshErr != nil {
			return err
		}
		return g.doOnce(ctx, method, path, query, in, out, authed)
	}
	return err
}

func (g *HTTPGateway) doOnce(ctx context.Context, method, path string, query url.Values, in, out any, authed bool) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	u := g.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		g.mu.Lock()
		token := g.accessToken
		g.mu.Unlock()
		req.Header.Set(common.AccessTokenHeaderName, common.AccessTokenScheme+" "+token)
	}

	resp, err := g.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return mapError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", common.ErrTransport, err)
		}
	}
	return nil
}

// refreshIfExpiring proactively refreshes the access token when its expiry
// claim is within the margin. The token is parsed without verification; the
// server remains the authority, this only avoids a predictable rejection.
func (g *HTTPGateway) refreshIfExpiring(ctx context.Context) error {
	g.mu.Lock()
	token := g.accessToken
	refresh := g.refreshToken
	g.mu.Unlock()

	if token == "" || refresh == "" {
		return nil
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil
	}
	if claims.ExpiresAt == nil || time.Until(claims.ExpiresAt.Time) > tokenExpiryMargin {
		return nil
	}
	return g.refresh(ctx)
}

func (g *HTTPGateway) refresh(ctx context.Context) error {
	g.mu.Lock()
	refresh := g.refreshToken
	g.mu.Unlock()
	if refresh == "" {
		return common.ErrUnauthorized
	}

	var resp tokenResponse
	body := map[string]any{"refresh_token": refresh}
	if err := g.doOnce(ctx, http.MethodPost, "/api/auth/refresh", nil, body, &resp, false); err != nil {
		return err
	}

	g.mu.Lock()
	g.accessToken = resp.AccessToken
	g.refreshToken = resp.RefreshToken
	g.mu.Unlock()
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func mapError(resp *http.Response) error {
	var payload errorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &payload)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if payload.Error == common.ErrTokenExpired.Error() {
			return common.ErrTokenExpired
		}
		return common.ErrUnauthorized
	case http.StatusNotFound:
		return common.ErrNotFound
	case http.StatusConflict:
		return common.ErrVersionConflict
	case http.StatusServiceUnavailable:
		return common.ErrUnavailable
	default:
		return fmt.Errorf("%w: unexpected status %s: %s", common.ErrTransport, resp.Status, payload.Error)
	}
}

func errorsIsAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
