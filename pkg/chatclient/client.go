// Package chatclient talks to the api and gateway services. It backs the
// terminal client and the smoke test script.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	chaterrors "github.com/mahaj/duochat/pkg/errors"
	"github.com/mahaj/duochat/pkg/model"
)

// Session is a logged in user and their token.
type Session struct {
	Token string
	User  model.User
}

type tokenResponse struct {
	Token    string `json:"token"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type API struct {
	base string
	http *http.Client
}

func NewAPI(base string) *API {
	return &API{base: strings.TrimSuffix(base, "/"), http: &http.Client{Timeout: 10 * time.Second}}
}

func (a *API) Register(ctx context.Context, username, password string) (Session, error) {
	return a.credentials(ctx, "/register", username, password)
}

func (a *API) Login(ctx context.Context, username, password string) (Session, error) {
	return a.credentials(ctx, "/login", username, password)
}

// LoginOrRegister logs in, registering the user first when it does not exist.
func (a *API) LoginOrRegister(ctx context.Context, username, password string) (Session, error) {
	s, err := a.Register(ctx, username, password)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, chaterrors.ErrConflict) {
		return Session{}, err
	}
	return a.Login(ctx, username, password)
}

func (a *API) credentials(ctx context.Context, path, username, password string) (Session, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return Session{}, err
	}
	var resp tokenResponse
	if err := a.do(ctx, http.MethodPost, path, "", bytes.NewReader(body), &resp); err != nil {
		return Session{}, err
	}
	return Session{Token: resp.Token, User: model.User{ID: resp.UserID, Username: resp.Username}}, nil
}

// Users lists everyone except the caller.
func (a *API) Users(ctx context.Context, token string) ([]model.User, error) {
	var users []model.User
	if err := a.do(ctx, http.MethodGet, "/users", token, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (a *API) do(ctx context.Context, method, path, token string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %s %s: %s", statusError(resp.StatusCode), method, path, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func statusError(code int) error {
	switch code {
	case http.StatusBadRequest:
		return chaterrors.ErrInvalidInput
	case http.StatusUnauthorized, http.StatusForbidden:
		return chaterrors.ErrUnauthorized
	case http.StatusNotFound:
		return chaterrors.ErrNotFound
	case http.StatusConflict:
		return chaterrors.ErrConflict
	default:
		return fmt.Errorf("unexpected status %d", code)
	}
}
