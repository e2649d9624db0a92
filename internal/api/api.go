package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/exttrust/exttrust/internal/analysis"
	"github.com/exttrust/exttrust/internal/policy"
)

// Scanner runs one trust analysis scan
type Scanner interface {
	Scan(ctx context.Context) (*analysis.Result, error)
}

// API handles HTTP API requests
type API struct {
	scanner Scanner
	table   policy.Table
}

// New creates a new API handler
func New(scanner Scanner, table policy.Table) *API {
	return &API{scanner: scanner, table: table}
}

// Router creates the API router
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	// Routes
	r.Post("/scan", a.scan)
	r.Get("/policy", a.getPolicy)

	return r
}

// Response wraps API responses
type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Meta  *Meta       `json:"meta,omitempty"`
	Error *ErrorMsg   `json:"error,omitempty"`
}

// Meta contains result metadata
type Meta struct {
	Total  int       `json:"total"`
	ScanID uuid.UUID `json:"scan_id"`
	Time   string    `json:"timestamp"`
}

// ErrorMsg represents an error response
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScanData is the payload of a successful scan
type ScanData struct {
	ID         uuid.UUID        `json:"id"`
	StartedAt  time.Time        `json:"started_at"`
	DurationMs int64            `json:"duration_ms"`
	Items      []analysis.Item  `json:"items"`
	Summary    analysis.Summary `json:"summary"`
}

// scan handles POST /scan
func (a *API) scan(w http.ResponseWriter, r *http.Request) {
	result, err := a.scanner.Scan(r.Context())
	if errors.Is(err, analysis.ErrInventoryUnavailable) {
		log.Printf("Scan failed: %v", err)
		respondError(w, http.StatusBadGateway, "inventory_unavailable", err.Error())
		return
	}
	if err != nil {
		log.Printf("Scan failed: %v", err)
		respondError(w, http.StatusInternalServerError, "scan_failed", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Data: ScanData{
			ID:         result.ID,
			StartedAt:  result.StartedAt,
			DurationMs: result.Duration.Milliseconds(),
			Items:      result.Items,
			Summary:    result.Summary,
		},
		Meta: &Meta{
			Total:  len(result.Items),
			ScanID: result.ID,
			Time:   time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// getPolicy handles GET /policy
func (a *API) getPolicy(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, Response{Data: a.table})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, Response{
		Error: &ErrorMsg{
			Code:    code,
			Message: message,
		},
	})
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
