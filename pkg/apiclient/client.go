// Package apiclient is a thin typed client for the attendance API. It maps
// one method per endpoint and surfaces server rejections as *APIError so
// callers can branch on the machine-readable code.
package apiclient

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
)

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Client talks to one server. It is safe for concurrent use; the bearer token
// can be swapped at any time after a fresh sign-in.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// SetToken installs the bearer token used on authenticated endpoints.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type SignInRequest struct {
	IDToken   string `json:"idToken"`
	DeviceID  string `json:"deviceId"`
	PubkeyPEM string `json:"pubkeyPem"`
}

type SignInResponse struct {
	Token  string `json:"token"`
	Status string `json:"status"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Session struct {
	SessionID            string   `json:"sessionId"`
	ClassName            string   `json:"className"`
	Location             Location `json:"location"`
	QRRotationIntervalMs int      `json:"qrRotationIntervalMs"`
}

type QRCode struct {
	QRNonce   string `json:"qrNonce"`
	SessionID string `json:"sessionId"`
	TS        string `json:"ts"`
}

type BatchEvent struct {
	Attendance map[string]any `json:"attendance"`
	StudentSig string         `json:"student_sig"`
}

type BatchResult struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Metadata string `json:"metadata,omitempty"`
}

type BatchResponse struct {
	Results    []BatchResult `json:"results"`
	ServerTime string        `json:"server_time"`
}

type Subject struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type HistoryItem struct {
	ID        string `json:"id"`
	ClassName string `json:"className"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Time returns the server's current UTC timestamp string.
func (c *Client) Time(ctx context.Context) (string, error) {
	var body struct {
		UTC string `json:"utc"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/time", nil, &body, false); err != nil {
		return "", err
	}
	return body.UTC, nil
}

// GoogleSignIn exchanges a Google ID token plus device key for a session
// token, and installs that token on the client.
func (c *Client) GoogleSignIn(ctx context.Context, req SignInRequest) (SignInResponse, error) {
	var out SignInResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/google-signin", req, &out, false); err != nil {
		return SignInResponse{}, err
	}
	c.SetToken(out.Token)
	return out, nil
}

func (c *Client) SessionCurrent(ctx context.Context) (Session, error) {
	var out Session
	err := c.do(ctx, http.MethodGet, "/api/session/current", nil, &out, true)
	return out, err
}

// SessionQR mints a fresh QR nonce for the class display. Callers pass the
// shared display secret, not a student bearer token.
func (c *Client) SessionQR(ctx context.Context, sessionID, secret string) (QRCode, error) {
	q := url.Values{"sessionId": {sessionID}, "secret": {secret}}
	var out QRCode
	err := c.do(ctx, http.MethodGet, "/api/session/qr?"+q.Encode(), nil, &out, false)
	return out, err
}

func (c *Client) AttendanceBatch(ctx context.Context, events []BatchEvent) (BatchResponse, error) {
	req := struct {
		Events []BatchEvent `json:"events"`
	}{Events: events}
	var out BatchResponse
	err := c.do(ctx, http.MethodPost, "/api/attendance/batch", req, &out, true)
	return out, err
}

func (c *Client) MySubjects(ctx context.Context) ([]Subject, error) {
	var body struct {
		Subjects []Subject `json:"subjects"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/student/my-subjects", nil, &body, true); err != nil {
		return nil, err
	}
	return body.Subjects, nil
}

func (c *Client) MyHistory(ctx context.Context, subjectID string) ([]HistoryItem, error) {
	q := url.Values{"subjectId": {subjectID}}
	var body struct {
		History []HistoryItem `json:"history"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/student/my-history?"+q.Encode(), nil, &body, true); err != nil {
		return nil, err
	}
	return body.History, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, authed bool) error {
	var reqBody io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+c.bearer())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Code: "UNKNOWN"}
	var envelope struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&envelope); err == nil && envelope.Code != "" {
		apiErr.Code = envelope.Code
		apiErr.Message = envelope.Message
	}
	return apiErr
}
