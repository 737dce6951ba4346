// Package api is the HTTP boundary toward the chat front end and the
// NPC-conversion subsystem. GET endpoints are public read-only state;
// POST endpoints mutate the ledger and require a bearer token.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/clanforge/internal/clans"
	"github.com/talgya/clanforge/internal/engine"
	"github.com/talgya/clanforge/internal/history"
	"github.com/talgya/clanforge/internal/ledger"
	"github.com/talgya/clanforge/internal/metrics"
)

// assignRateLimit bounds assignment draws per player per hour.
const assignRateLimit = 120

// Server serves the assignment engine over HTTP.
type Server struct {
	Engine   *engine.Engine
	Ledger   *ledger.Ledger
	History  *history.Log
	Catalog  *clans.Catalog
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
	Limiter  *AssignLimiter
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	if s.Limiter == nil {
		s.Limiter = NewAssignLimiter(assignRateLimit, time.Hour)
	}

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/clans", s.handleClans)
	mux.HandleFunc("/api/v1/populations", s.handlePopulations)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/history", s.handleHistory)
	mux.HandleFunc("/api/v1/player/", s.handlePlayer)
	mux.Handle("/metrics", metrics.Handler())

	// Mutating endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/assign", s.adminOnly(s.handleAssign))
	mux.HandleFunc("/api/v1/preview", s.adminOnly(s.handlePreview))
	mux.HandleFunc("/api/v1/death", s.adminOnly(s.handleDeath))

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "mutating endpoints disabled (no CLANFORGE_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

// writeError maps the engine's typed errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var (
		validation *clans.ValidationError
		noClan     *clans.NoEligibleClanError
		invariant  *clans.InvariantViolationError
		persist    *clans.PersistenceError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.As(err, &noClan):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &invariant):
		status = http.StatusConflict
	case errors.As(err, &persist):
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Ledger.Snapshot()
	writeJSON(w, map[string]any{
		"name":           "clanforge",
		"clans":          s.Catalog.Len(),
		"total_living":   snap.TotalLiving,
		"total_assigned": snap.TotalAssigned(),
		"assigned_human": humanize.Comma(snap.TotalAssigned()),
	})
}

func (s *Server) handleClans(w http.ResponseWriter, r *http.Request) {
	type clanEntry struct {
		ID          string  `json:"id"`
		DisplayName string  `json:"display_name"`
		Rarity      string  `json:"rarity"`
		BaseWeight  float64 `json:"base_weight"`
	}
	all := s.Catalog.Clans()
	out := make([]clanEntry, 0, len(all))
	for _, c := range all {
		out = append(out, clanEntry{
			ID:          c.ID,
			DisplayName: c.DisplayName,
			Rarity:      c.Rarity.String(),
			BaseWeight:  c.BaseWeight,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handlePopulations(w http.ResponseWriter, r *http.Request) {
	snap := s.Ledger.Snapshot()
	writeJSON(w, map[string]any{
		"total_living": snap.TotalLiving,
		"counts":       snap.Counts,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, engine.RarityStatistics(s.Catalog, s.Ledger.Snapshot()))
}

// handleHistory serves GET /api/v1/history?player_id=…&from=…&to=…&limit=…
// with from/to as RFC 3339 timestamps.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if playerID := q.Get("player_id"); playerID != "" {
		limit, _ := strconv.Atoi(q.Get("limit"))
		entries, err := s.History.ByPlayer(r.Context(), playerID, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, entries)
		return
	}

	from, errFrom := time.Parse(time.RFC3339, q.Get("from"))
	to, errTo := time.Parse(time.RFC3339, q.Get("to"))
	if errFrom != nil || errTo != nil {
		http.Error(w, "history query requires player_id or from/to (RFC 3339)", http.StatusBadRequest)
		return
	}

	entries, err := s.History.ByTimeRange(r.Context(), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, entries)
}

// handlePlayer serves GET /api/v1/player/{id}: the player's current clan.
func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	playerID := strings.TrimPrefix(r.URL.Path, "/api/v1/player/")
	if playerID == "" {
		http.Error(w, "missing player id", http.StatusBadRequest)
		return
	}

	entry, err := s.Engine.PlayerClan(r.Context(), playerID)
	if err != nil {
		writeError(w, err)
		return
	}
	if entry == nil {
		http.Error(w, "player has no assignment", http.StatusNotFound)
		return
	}
	writeJSON(w, entry)
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// Empty player ids fall through to engine validation.
	if s.Limiter != nil && req.PlayerID != "" && !s.Limiter.Allow(req.PlayerID) {
		retry := int(s.Limiter.RetryAfter(req.PlayerID).Seconds()) + 1
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		http.Error(w, "draw limit reached for player", http.StatusTooManyRequests)
		return
	}

	result, err := s.Engine.Assign(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.Engine.Preview(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result)
}

// handleDeath is the population-decrement hook for the NPC-conversion
// subsystem: POST {"clan_id": "..."} when a player is permanently removed.
func (s *Server) handleDeath(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClanID string `json:"clan_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ClanID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.Ledger.Decrement(r.Context(), req.ClanID); err != nil {
		writeError(w, err)
		return
	}

	metrics.Deaths.WithLabelValues(req.ClanID).Inc()
	slog.Info("population decremented", "clan", req.ClanID)
	writeJSON(w, map[string]any{
		"clan_id": req.ClanID,
		"living":  s.Ledger.Snapshot().Living(req.ClanID),
	})
}
