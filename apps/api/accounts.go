package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mahaj/duochat/pkg/auth"
	chaterrors "github.com/mahaj/duochat/pkg/errors"
	"github.com/mahaj/duochat/pkg/model"
	"github.com/mahaj/duochat/pkg/store"
)

type TokenResponse struct {
	Token    string `json:"token"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type AccountHandler struct {
	users  store.UserStore
	issuer *auth.Issuer
	log    *slog.Logger
}

func NewAccountHandler(users store.UserStore, issuer *auth.Issuer, log *slog.Logger) *AccountHandler {
	return &AccountHandler{users: users, issuer: issuer, log: log}
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (auth.RegisterRequest, bool) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return req, false
	}
	if err := auth.ValidateRegister(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// Register creates a user and logs them in.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.log.Error("Failed to hash password", "error", err)
		http.Error(w, "Failed to register", http.StatusInternalServerError)
		return
	}
	u, err := h.users.CreateUser(r.Context(), req.Username, hash)
	if errors.Is(err, chaterrors.ErrConflict) {
		http.Error(w, "Username already taken", http.StatusConflict)
		return
	}
	if err != nil {
		h.log.Error("Failed to create user", "username", req.Username, "error", err)
		http.Error(w, "Failed to register", http.StatusInternalServerError)
		return
	}
	h.log.Info("User registered", "user_id", u.ID, "username", u.Username)
	h.respondToken(w, http.StatusCreated, u)
}

func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}
	c, err := h.users.UserByName(r.Context(), req.Username)
	if err == nil {
		err = auth.CheckPassword(c.PasswordHash, req.Password)
	}
	if errors.Is(err, chaterrors.ErrNotFound) || errors.Is(err, chaterrors.ErrUnauthorized) {
		http.Error(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.log.Error("Failed to log in", "username", req.Username, "error", err)
		http.Error(w, "Failed to log in", http.StatusInternalServerError)
		return
	}
	h.respondToken(w, http.StatusOK, c.User)
}

func (h *AccountHandler) respondToken(w http.ResponseWriter, status int, u model.User) {
	token, err := h.issuer.GenerateToken(u)
	if err != nil {
		h.log.Error("Failed to generate token", "error", err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, TokenResponse{Token: token, UserID: u.ID, Username: u.Username})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
