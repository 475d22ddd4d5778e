package handler

import (
	"context"
	"lifeos_api/internal/common"
	"net/http"
)

const (
	statusHealthy        = "healthy"
	databaseConnected    = "connected"
	databaseDisconnected = "disconnected"
)

// Pinger reports whether the database is reachable.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	service string
	ping    Pinger
}

func NewHealthHandler(service string, ping Pinger) *HealthHandler {
	return &HealthHandler{service: service, ping: ping}
}

type HealthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Database string `json:"database"`
}

// Health always answers 200; a failed ping only flips the database field.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	db := databaseConnected
	if h.ping == nil || h.ping(r.Context()) != nil {
		db = databaseDisconnected
	}
	common.RespondWithJSON(w, http.StatusOK, HealthResponse{
		Status:   statusHealthy,
		Service:  h.service,
		Database: db,
	})
}

func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	common.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "LifeOS API is running"})
}
