package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/paulmach/orb/maptile"

	"github.com/jobrunner/charttiler/internal/application"
	"github.com/jobrunner/charttiler/internal/domain"
)

// eventBuffer is the number of factory events held for a slow client.
const eventBuffer = 64

// handleHealth returns detailed health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := s.health.GetHealthDetails(r.Context())

	status := http.StatusOK
	if !details.Healthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, map[string]interface{}{
		"status":         boolToStatus(details.Healthy),
		"ready":          details.Ready,
		"sources_loaded": details.SourcesLoaded,
		"components":     details.Components,
	})
}

// handleLiveness returns liveness status.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsHealthy(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

// handleReadiness returns readiness status.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsReady(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
}

// handleTiles decomposes a viewport into tiles.
func (s *Server) handleTiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, err := parseFloat(q.Get("lat"), "lat")
	if err != nil {
		s.handleError(w, err)
		return
	}
	lon, err := parseFloat(q.Get("lon"), "lon")
	if err != nil {
		s.handleError(w, err)
		return
	}
	ppl, err := parseFloat(q.Get("ppl"), "ppl")
	if err != nil || ppl <= 0 {
		s.writeError(w, http.StatusBadRequest, "ppl must be a positive number")
		return
	}
	width, err := parseViewportSize(q.Get("width"), "width")
	if err != nil {
		s.handleError(w, err)
		return
	}
	height, err := parseViewportSize(q.Get("height"), "height")
	if err != nil {
		s.handleError(w, err)
		return
	}

	center := domain.NewPos(lat, lon)
	if err := center.Validate(); err != nil {
		s.handleError(w, err)
		return
	}

	tiles := s.tiles.Tiles(center, ppl, width, height)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tiles": tiles,
		"count": len(tiles),
	})
}

// handleTileData returns the fragments of one tile as GeoJSON.
func (s *Server) handleTileData(w http.ResponseWriter, r *http.Request) {
	rect, ppl, err := parseTileQuery(r)
	if err != nil {
		s.handleError(w, err)
		return
	}

	charts := s.tiles.TileData(r.Context(), rect, ppl)
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(featureCollection(charts))
}

// handleVectorTile renders one slippy map tile as a Mapbox Vector Tile.
func (s *Server) handleVectorTile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	z, errZ := strconv.Atoi(vars["z"])
	x, errX := strconv.Atoi(vars["x"])
	y, errY := strconv.Atoi(vars["y"])
	if errZ != nil || errX != nil || errY != nil || z > domain.MaxZoom {
		s.writeError(w, http.StatusBadRequest, "invalid tile coordinates")
		return
	}
	if n := 1 << uint(z); x >= n || y >= n {
		s.writeError(w, http.StatusBadRequest, "tile outside the zoom level")
		return
	}

	tile := maptile.New(uint32(x), uint32(y), maptile.Zoom(z))
	rect := domain.RectFromBound(tile.Bound())
	ppl := float64(domain.MaxPixelsPerLongitude(z))

	data, err := vectorTile(s.tiles.TileData(r.Context(), rect, ppl), tile)
	if err != nil {
		s.logger.Error("encoding vector tile", "error", err, "z", z, "x", x, "y", y)
		s.writeError(w, http.StatusInternalServerError, "Failed to encode tile")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.mapbox-vector-tile")
	w.Header().Set("Content-Encoding", "gzip")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleTileSettings hides charts on one tile.
func (s *Server) handleTileSettings(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body struct {
		DisabledCharts []string `json:"disabledCharts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.tiles.SetTileSettings(id, body.DisabledCharts)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":             id,
		"disabledCharts": body.DisabledCharts,
	})
}

// handleListCharts returns all registered charts.
func (s *Server) handleListCharts(w http.ResponseWriter, _ *http.Request) {
	sources := s.tiles.Sources()
	enabled := 0
	for _, src := range sources {
		if src.Enabled {
			enabled++
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"charts":  sources,
		"count":   len(sources),
		"enabled": enabled,
	})
}

// handleChartInfo describes the chart candidates of one tile.
func (s *Server) handleChartInfo(w http.ResponseWriter, r *http.Request) {
	rect, ppl, err := parseTileQuery(r)
	if err != nil {
		s.handleError(w, err)
		return
	}

	info := s.tiles.ChartInfo(rect, ppl)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"charts": info,
		"count":  len(info),
	})
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleEnableAllCharts shows or hides every chart.
func (s *Server) handleEnableAllCharts(w http.ResponseWriter, r *http.Request) {
	var body enabledRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		s.writeError(w, http.StatusBadRequest, "body must be {\"enabled\": true|false}")
		return
	}

	changed := s.tiles.SetAllChartsEnabled(*body.Enabled)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"enabled": *body.Enabled,
		"changed": len(changed),
	})
}

// handleEnableChart shows or hides one chart.
func (s *Server) handleEnableChart(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var body enabledRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		s.writeError(w, http.StatusBadRequest, "body must be {\"enabled\": true|false}")
		return
	}

	if err := s.tiles.SetChartEnabled(name, *body.Enabled); err != nil {
		s.handleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":    name,
		"enabled": *body.Enabled,
	})
}

// handleListDirectories returns the loaded chart directories.
func (s *Server) handleListDirectories(w http.ResponseWriter, _ *http.Request) {
	dirs := s.registry.Directories()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"directories": dirs,
		"count":       len(dirs),
		"sources":     s.registry.SourceCount(),
	})
}

// handleLoadDirectory loads the charts of a directory.
func (s *Server) handleLoadDirectory(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Path == "" {
		s.writeError(w, http.StatusBadRequest, "body must be {\"path\": \"...\"}")
		return
	}

	if err := s.registry.LoadDirectory(r.Context(), body.Path); err != nil {
		s.handleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"path":    body.Path,
		"sources": s.registry.SourceCount(),
	})
}

// handleUnloadDirectory removes the charts of a directory.
func (s *Server) handleUnloadDirectory(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "path parameter required")
		return
	}

	if err := s.registry.UnloadDirectory(r.Context(), path); err != nil {
		s.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEvents streams factory events as newline delimited JSON until the
// client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events := make(chan domain.Event, eventBuffer)
	unsubscribe := s.tiles.Subscribe(func(e domain.Event) {
		select {
		case events <- e:
		default:
			s.logger.Warn("dropping event for slow client", "kind", e.Kind)
		}
	})
	defer unsubscribe()

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			if err := enc.Encode(e); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// handleSync handles the sync trigger endpoint.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.sync.TriggerSync(r.Context())
	if err != nil {
		if errors.Is(err, application.ErrRateLimited) {
			wait := int(math.Ceil(s.sync.RetryAfter().Seconds()))
			if wait < 1 {
				wait = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(wait))
			s.writeError(w, http.StatusTooManyRequests,
				fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", wait))
			return
		}
		s.logger.Error("sync failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Sync failed")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleOpenAPI returns the OpenAPI specification.
func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	spec, err := s.openAPI()
	if err != nil {
		s.logger.Error("failed to get OpenAPI spec", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load OpenAPI specification")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(spec)
}

// parseTileQuery reads a tile rectangle and resolution from the query.
func parseTileQuery(r *http.Request) (domain.GeoRect, float64, error) {
	q := r.URL.Query()
	var edges [4]float64
	for i, name := range []string{"top", "bottom", "left", "right"} {
		v, err := parseFloat(q.Get(name), name)
		if err != nil {
			return domain.GeoRect{}, 0, err
		}
		edges[i] = v
	}
	rect := domain.GeoRect{Top: edges[0], Bottom: edges[1], Left: edges[2], Right: edges[3]}
	if err := rect.Validate(); err != nil {
		return domain.GeoRect{}, 0, err
	}

	ppl, err := parseFloat(q.Get("ppl"), "ppl")
	if err != nil {
		return domain.GeoRect{}, 0, err
	}
	if ppl <= 0 {
		return domain.GeoRect{}, 0, &domain.ValidationError{
			Field:      "ppl",
			Value:      ppl,
			Constraint: "> 0",
			Message:    "ppl must be positive",
		}
	}
	return rect, ppl, nil
}

func parseFloat(raw, name string) (float64, error) {
	if raw == "" {
		return 0, &domain.ValidationError{Field: name, Constraint: "required", Message: name + " parameter required"}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &domain.ValidationError{Field: name, Value: raw, Constraint: "number", Message: "invalid " + name + " parameter"}
	}
	return v, nil
}

// maxViewportSize bounds the width and height of a tile list request.
const maxViewportSize = 16384

func parseViewportSize(raw, name string) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, &domain.ValidationError{Field: name, Value: raw, Constraint: "> 0", Message: name + " must be a positive integer"}
	}
	if v > maxViewportSize {
		return 0, &domain.ValidationError{
			Field:      name,
			Value:      v,
			Constraint: "<= " + strconv.Itoa(maxViewportSize),
			Message:    name + " must not exceed " + strconv.Itoa(maxViewportSize) + " pixels",
		}
	}
	return v, nil
}

// handleError maps application errors to HTTP status codes.
func (s *Server) handleError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		s.writeError(w, http.StatusBadRequest, validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrChartNotFound):
		s.writeError(w, http.StatusNotFound, "Chart not found")
	case errors.Is(err, domain.ErrDirectoryNotFound):
		s.writeError(w, http.StatusNotFound, "Chart directory not found")
	case errors.Is(err, domain.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Request failed")
	}
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, http.StatusMethodNotAllowed, r.Method+" not allowed on "+r.URL.Path)
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func boolToStatus(b bool) string {
	if b {
		return "ok"
	}
	return "unhealthy"
}
