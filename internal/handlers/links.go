package handlers

import (
	"log/slog"
	"net/http"

	"github.com/agentscan/andy-web/internal/models"
)

type leavePageData struct {
	URL string
}

// HandleLeave renders the confirmation shown before the user leaves for an external site. Every link in
// a rendered answer points here. Only absolute http(s) URLs are accepted.
func (m Main) HandleLeave(w http.ResponseWriter, r *http.Request) {
	target, err := models.NormalizeURL(r.URL.Query().Get("url"))
	if err != nil {
		http.Error(w, "Invalid url", http.StatusBadRequest)
		return
	}

	m.logger.Info("external_link_clicked", slog.String("url", target))

	if err := m.templates.ExecuteTemplate(w, "leave.html", leavePageData{URL: target}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
