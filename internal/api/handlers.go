// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/hexwave/hexwave/internal/grid"
	"github.com/hexwave/hexwave/internal/logging"
	"github.com/hexwave/hexwave/internal/metrics"
	"github.com/hexwave/hexwave/internal/models"
	"github.com/hexwave/hexwave/internal/room"
	"github.com/hexwave/hexwave/internal/store"
	"github.com/hexwave/hexwave/internal/wire"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("api: encode response")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

func (rt *Router) handleHealthLive(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) handleHealthReady(w http.ResponseWriter, _ *http.Request) {
	if !rt.ready() {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"rooms":  rt.registry.Snapshot(),
	})
}

// handleResolveCell maps a coordinate to its cell without joining anything.
// Clients use it to preview an area before opening a websocket.
func (rt *Router) handleResolveCell(w http.ResponseWriter, r *http.Request) {
	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "lat must be a number")
		return
	}
	lng, err := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "lng must be a number")
		return
	}
	res := rt.chatCfg.DefaultResolution
	if raw := r.URL.Query().Get("resolution"); raw != "" {
		res, err = strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "resolution must be an integer")
			return
		}
	}

	cell, err := grid.CellAt(lat, lng, res)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	info, err := rt.cellInfo(cell)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "cell lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// handleRoomMessages serves a history page over REST, mirroring the page a
// websocket join would seed. Newest first; before pages backwards.
func (rt *Router) handleRoomMessages(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if !room.IsDirectID(roomID) {
		if _, err := grid.Resolution(grid.CellID(roomID)); err != nil {
			respondError(w, http.StatusBadRequest, "invalid room id")
			return
		}
	}

	limit := rt.chatCfg.HistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	before := r.URL.Query().Get("before")

	start := time.Now()
	msgs, err := rt.store.History(r.Context(), roomID, limit, before)
	metrics.RecordStoreOperation("history", time.Since(start), err)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrUnknownMessage):
			respondError(w, http.StatusBadRequest, "unknown before cursor")
		case errors.Is(err, store.ErrUnavailable):
			respondError(w, http.StatusServiceUnavailable, "message store unavailable")
		default:
			logging.Error().Err(err).Str("room_id", roomID).Msg("api: history failed")
			respondError(w, http.StatusInternalServerError, "history unavailable")
		}
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"room_id":  roomID,
		"messages": msgs,
	})
}

// handleRoomNeighbors reports the cells adjacent to a spatial room with live
// presence counts. Direct rooms have no spatial neighbors.
func (rt *Router) handleRoomNeighbors(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if room.IsDirectID(roomID) {
		respondError(w, http.StatusBadRequest, "direct rooms have no neighbors")
		return
	}

	neighbors, err := rt.registry.Neighbors(grid.CellID(roomID), rt.chatCfg.NeighborRings)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid cell id")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"cell_id":   roomID,
		"neighbors": neighbors,
	})
}

// cellInfo assembles the display metadata for one cell.
func (rt *Router) cellInfo(cell grid.CellID) (wire.CellInfo, error) {
	res, err := grid.Resolution(cell)
	if err != nil {
		return wire.CellInfo{}, err
	}
	lat, lng, err := grid.Center(cell)
	if err != nil {
		return wire.CellInfo{}, err
	}
	boundary, err := grid.Boundary(cell)
	if err != nil {
		return wire.CellInfo{}, err
	}
	neighbors, err := rt.registry.Neighbors(cell, rt.chatCfg.NeighborRings)
	if err != nil {
		return wire.CellInfo{}, err
	}
	return wire.CellInfo{
		CellID:      string(cell),
		Resolution:  res,
		CenterLat:   lat,
		CenterLng:   lng,
		DisplayName: grid.DisplayName(cell),
		Boundary:    boundary,
		Neighbors:   neighbors,
	}, nil
}
