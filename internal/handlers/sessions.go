package handlers

import (
	"log/slog"
	"net/http"

	"github.com/agentscan/andy-web/internal/models"
)

type sessionsData struct {
	Sessions []models.Session
	Error    string
}

// HandleSessions renders the remote sessions panel. Anonymous users get no panel at all.
func (m Main) HandleSessions(w http.ResponseWriter, r *http.Request) {
	if !m.conversation.Authenticated(r.Context()) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	data := sessionsData{}
	sessions, err := m.conversation.Sessions(r.Context())
	if err != nil {
		m.logger.Error("Failed to fetch sessions", slog.String(errLoggerKey, err.Error()))
		data.Error = "Failed to load sessions"
	}
	data.Sessions = sessions

	if err := m.templates.ExecuteTemplate(w, "sessions", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
