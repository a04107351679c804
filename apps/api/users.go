package main

import (
	"log/slog"
	"net/http"

	"github.com/mahaj/duochat/pkg/auth"
	"github.com/mahaj/duochat/pkg/store"
)

// UsersHandler lists everyone the caller can open a conversation with.
func UsersHandler(users store.UserStore, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := auth.UserFrom(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		list, err := users.ListUsersExcept(r.Context(), caller.ID)
		if err != nil {
			log.Error("Failed to list users", "user_id", caller.ID, "error", err)
			http.Error(w, "Failed to list users", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
