package remote

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
	"strings"
	"time"

	"github.com/conorfennell/neurapath/internal/domain"
	"github.com/conorfennell/neurapath/internal/session"
)

// DefaultTimeout bounds every request made by the HTTP client.
const DefaultTimeout = 30 * time.Second

// StatusError is a failed response from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Code)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Code)
}

// Unwrap maps well-known statuses onto this package's sentinel errors.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrUnknownUser
	case http.StatusConflict:
		return ErrUserExists
	}
	return nil
}

// HTTP talks to a neurapath server using basic auth.
type HTTP struct {
	base   string
	client *http.Client
}

// NewHTTP creates a client for the server at baseURL. A zero timeout uses
// DefaultTimeout.
func NewHTTP(baseURL string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTP{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// apiResponse is the envelope every error response uses.
type apiResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

func (h *HTTP) do(ctx context.Context, method, path string, cred *session.Credentials, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.base+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cred != nil {
		req.SetBasicAuth(cred.UserID, cred.Password)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response of %s %s: %w", method, path, err)
	}

	var envelope apiResponse
	decoded := json.Unmarshal(raw, &envelope) == nil
	if resp.StatusCode >= 300 || (decoded && envelope.Error) {
		return nil, &StatusError{Code: resp.StatusCode, Message: envelope.Message}
	}
	return raw, nil
}

// FetchDatabase returns the user's blob. With a matching session in ctx the
// private endpoint is used; otherwise the public one.
func (h *HTTP) FetchDatabase(ctx context.Context, userID string) ([]byte, error) {
	if cred, ok := session.FromContext(ctx); ok && cred.UserID == userID {
		return h.do(ctx, http.MethodGet, "/user/data", &cred, nil)
	}
	return h.do(ctx, http.MethodGet, "/user/data/"+url.PathEscape(userID), nil, nil)
}

// SaveDatabase uploads the whole database.
func (h *HTTP) SaveDatabase(ctx context.Context, cred session.Credentials, p domain.Payload) error {
	_, err := h.do(ctx, http.MethodPost, "/user/data", &cred, p)
	return err
}

// CreateRecord uploads one new record.
func (h *HTTP) CreateRecord(ctx context.Context, cred session.Credentials, rec domain.Record) error {
	_, err := h.do(ctx, http.MethodPost, "/user/records", &cred, rec)
	return err
}

// UpdateRecord uploads one changed record.
func (h *HTTP) UpdateRecord(ctx context.Context, cred session.Credentials, rec domain.Record) error {
	_, err := h.do(ctx, http.MethodPut, "/user/records", &cred, rec)
	return err
}

// DeleteRecord deletes one record.
func (h *HTTP) DeleteRecord(ctx context.Context, cred session.Credentials, id string) error {
	_, err := h.do(ctx, http.MethodDelete, "/user/records?id="+url.QueryEscape(id), &cred, nil)
	return err
}

// Register creates an account.
func (h *HTTP) Register(ctx context.Context, cred session.Credentials) error {
	_, err := h.do(ctx, http.MethodPost, "/user/register", &cred, nil)
	return err
}

// Authenticate succeeds when the server accepts cred.
func (h *HTTP) Authenticate(ctx context.Context, cred session.Credentials) error {
	_, err := h.do(ctx, http.MethodGet, "/user/data", &cred, nil)
	return err
}

// DeleteAccount deletes the account and all of its data.
func (h *HTTP) DeleteAccount(ctx context.Context, cred session.Credentials) error {
	_, err := h.do(ctx, http.MethodPost, "/user/delete", &cred, nil)
	return err
}

// SetPublic changes whether the user's database is listed publicly.
func (h *HTTP) SetPublic(ctx context.Context, cred session.Credentials, public bool) error {
	_, err := h.do(ctx, http.MethodPost, "/user/set/public/"+strconv.FormatBool(public), &cred, nil)
	return err
}

// PublicDatabases lists the users whose databases are public.
func (h *HTTP) PublicDatabases(ctx context.Context) ([]string, error) {
	raw, err := h.do(ctx, http.MethodGet, "/public/data", nil, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Databases []string `json:"databases"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode public databases: %w", err)
	}
	return out.Databases, nil
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
