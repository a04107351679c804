package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mahaj/duochat/pkg/auth"
	"github.com/mahaj/duochat/pkg/room"
)

type Members interface {
	Members(ctx context.Context, channel room.ChannelID) ([]int64, error)
}

type PresenceHandler struct {
	members Members
	log     *slog.Logger
}

func NewPresenceHandler(m Members, log *slog.Logger) *PresenceHandler {
	return &PresenceHandler{members: m, log: log}
}

// ServeHTTP answers GET /channels/{id}/users with the ids of the users
// connected to the channel. Callers only see channels they belong to.
func (h *PresenceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.UserFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	d, err := room.Parse(room.ChannelID(r.PathValue("id")))
	if err != nil {
		http.Error(w, "Invalid channel", http.StatusBadRequest)
		return
	}
	if !d.Includes(caller.ID) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	users, err := h.members.Members(r.Context(), d.Channel())
	if err != nil {
		h.log.Error("Failed to fetch presence", "channel", d.Channel(), "error", err)
		http.Error(w, "Failed to fetch presence", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, users)
}
