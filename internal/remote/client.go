// Package remote implements the duty-roster service client. Every
// operation reports one of the four client states instead of leaking
// transport or decode errors; callers branch on the state, never on an
// error value.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"

	"github.com/wachbuch/roster-mirror/internal/logger"
	"github.com/wachbuch/roster-mirror/internal/roster"
)

const (
	loginPath      = "api/selfservice/v1/user/login"
	masterDataPath = "api/selfservice/v1/stammdaten/mitarbeiter"

	publicPlanPathFormat  = "api/selfservice/v1/dienstplan/bereich/%d/von/%s/bis/%s"
	privateListPathFormat = "api/selfservice/v1/dienstliste/von/%s/bis/%s"

	authCookieName = "Auth-Token-SelfService"
	xsrfHeaderName = "X-XSRF-TOKEN"
	xsrfTokenClaim = "XsrfToken"
)

// RangeResult is the decoded payload of a roster fetch, already reduced
// to the one active duty per employee and day.
type RangeResult struct {
	Employees []*roster.Employee
	Shifts    []*roster.Shift
}

// Client talks to one remote duty-roster service. The session token
// obtained by Login is held internally; all methods are safe for
// concurrent use, though the coordinator serializes logins anyway.
type Client struct {
	baseURL      *url.URL
	departmentID int64
	httpClient   *http.Client

	mu        sync.Mutex
	authToken string
	xsrfToken string
}

// New creates a client for the service at endpoint.
func New(endpoint string, departmentID int64, timeout time.Duration) (*Client, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	return &Client{
		baseURL:      base,
		departmentID: departmentID,
		httpClient:   &http.Client{Timeout: timeout},
	}, nil
}

// Authenticated reports whether a session token is present. It says
// nothing about whether the remote still accepts it; TestConnection
// answers that.
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authToken != ""
}

// ClearSession drops the held session token.
func (c *Client) ClearSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = ""
	c.xsrfToken = ""
}

// Login authenticates with a username and the pre-hashed password. On
// success the session token and its XSRF companion are retained for
// subsequent calls. A 400 or 403 means the credential itself was
// rejected; everything else non-2xx is a server-side problem.
func (c *Client) Login(ctx context.Context, username, passwordHash string) roster.ClientState {
	body, err := json.Marshal(loginRequest{Username: username, Password: passwordHash})
	if err != nil {
		return roster.StateServerAppError
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(loginPath), bytes.NewReader(body))
	if err != nil {
		return roster.StateServerAppError
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Debug("login transport failure", "error", err)
		return roster.StateConnectionError
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusForbidden:
		return roster.StateCredentialsError
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		logger.Debug("login rejected by server", "status", resp.StatusCode)
		return roster.StateServerAppError
	}

	var decoded loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil || decoded.Token == "" {
		logger.Debug("login response undecodable", "error", err)
		return roster.StateServerAppError
	}

	xsrf, err := xsrfFromToken(decoded.Token)
	if err != nil {
		logger.Debug("login token unusable", "error", err)
		return roster.StateServerAppError
	}

	c.mu.Lock()
	c.authToken = decoded.Token
	c.xsrfToken = xsrf
	c.mu.Unlock()
	return roster.StateSuccessful
}

// xsrfFromToken extracts the XSRF companion value embedded in the
// session JWT. The token is the server's own and comes over TLS right
// after it was issued, so it is read without signature verification.
func xsrfFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("failed to parse session token: %w", err)
	}
	xsrf, ok := claims[xsrfTokenClaim].(string)
	if !ok || xsrf == "" {
		return "", fmt.Errorf("session token carries no %s claim", xsrfTokenClaim)
	}
	return xsrf, nil
}

// TestConnection probes whether the held session is still accepted by
// requesting the user's master data and discarding the payload.
func (c *Client) TestConnection(ctx context.Context) roster.ClientState {
	_, state := c.get(ctx, masterDataPath)
	return state
}

// FetchMasterData retrieves the authenticated user's own identity.
func (c *Client) FetchMasterData(ctx context.Context) roster.MasterData {
	body, state := c.get(ctx, masterDataPath)
	if state != roster.StateSuccessful {
		return roster.MasterData{State: state}
	}

	var decoded masterDataResponse
	if err := json.Unmarshal(body, &decoded); err != nil || decoded.ID == 0 {
		logger.Debug("master data undecodable", "error", err)
		return roster.MasterData{State: roster.StateServerAppError}
	}
	return roster.MasterData{
		State:          roster.StateSuccessful,
		EmployeeID:     decoded.ID,
		FirstName:      decoded.FirstName,
		LastName:       decoded.LastName,
		EmployeeNumber: decoded.EmployeeNumber,
	}
}

// FetchPublicRange retrieves the department's roster for [from, to] and
// reduces it to active duties.
func (c *Client) FetchPublicRange(ctx context.Context, from, to time.Time) (*RangeResult, roster.ClientState) {
	path := fmt.Sprintf(publicPlanPathFormat, c.departmentID,
		from.Format(roster.DateOnlyFormat), to.Format(roster.DateOnlyFormat))
	body, state := c.get(ctx, path)
	if state != roster.StateSuccessful {
		return nil, state
	}

	var decoded planResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		logger.Debug("public plan undecodable", "error", err)
		return nil, roster.StateServerAppError
	}
	// An absent Mitarbeiter collection is an error report shaped like a
	// success; importing it as an empty batch would prune the cache.
	if decoded.Message != "" || decoded.Employees == nil {
		logger.Debug("public plan incomplete", "message", decoded.Message)
		return nil, roster.StateServerAppError
	}
	return reducePlan(decoded.Employees, c.departmentID), roster.StateSuccessful
}

// FetchPrivateRange retrieves the authenticated user's own duties for
// [from, to]. The result carries no employee records; the duties belong
// to the session owner.
func (c *Client) FetchPrivateRange(ctx context.Context, from, to time.Time) (*RangeResult, roster.ClientState) {
	path := fmt.Sprintf(privateListPathFormat,
		from.Format(roster.DateOnlyFormat), to.Format(roster.DateOnlyFormat))
	body, state := c.get(ctx, path)
	if state != roster.StateSuccessful {
		return nil, state
	}

	var decoded privateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		logger.Debug("private list undecodable", "error", err)
		return nil, roster.StateServerAppError
	}
	if decoded.Message != "" || decoded.Items == nil {
		logger.Debug("private list incomplete", "message", decoded.Message)
		return nil, roster.StateServerAppError
	}
	return reducePrivate(decoded.Items, c.departmentID), roster.StateSuccessful
}

// get performs an authenticated GET and translates every failure mode
// into a client state. A session-expired message in an otherwise
// successful response is a server-side failure: resolving it needs a
// fresh login, which is the coordinator's job, not this layer's.
func (c *Client) get(ctx context.Context, path string) ([]byte, roster.ClientState) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(path), nil)
	if err != nil {
		return nil, roster.StateServerAppError
	}

	c.mu.Lock()
	if c.authToken != "" {
		req.Header.Set(xsrfHeaderName, c.xsrfToken)
		req.Header.Set("Cookie", fmt.Sprintf("%s=%s;", authCookieName, c.authToken))
	}
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Debug("request transport failure", "path", path, "error", err)
		return nil, roster.StateConnectionError
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, roster.StateConnectionError
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Debug("request rejected by server", "path", path, "status", resp.StatusCode)
		return nil, roster.StateServerAppError
	}

	if message := gjson.GetBytes(body, "Message").String(); isSessionExpiredMessage(message) {
		logger.Debug("session expired", "path", path)
		return nil, roster.StateServerAppError
	}
	return body, roster.StateSuccessful
}

func (c *Client) resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return c.baseURL.String() + path
	}
	return c.baseURL.ResolveReference(ref).String()
}
