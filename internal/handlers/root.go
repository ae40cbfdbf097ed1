package handlers

import (
	"net/http"

	"chat-relay/internal/models"
)

type RootHandler struct {
	welcome   string
	providers []string
}

func NewRootHandler(welcome string, providers []string) *RootHandler {
	return &RootHandler{welcome: welcome, providers: providers}
}

func (h *RootHandler) Welcome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.WelcomeResponse{Message: h.welcome})
}

func (h *RootHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthResponse{Status: "ok", Providers: h.providers})
}
