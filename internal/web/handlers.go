package web

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/justestif/lastfm-recommender/internal/exclude"
	"github.com/justestif/lastfm-recommender/internal/recommend"
	"github.com/justestif/lastfm-recommender/internal/store"
)

// Recommender is the engine surface the handlers call.
type Recommender interface {
	GetRecommendations(ctx context.Context, isReplacement bool) ([]recommend.Record, error)
	Replace(ctx context.Context, skip []string) ([]recommend.Record, error)
	CacheExpiry(ctx context.Context) int64
	AddToExcludeList(ctx context.Context, name string) (bool, error)
	ExcludeList(ctx context.Context) ([]string, error)
	PurgeCache(ctx context.Context) error
	TargetCount() int
}

var _ Recommender = (*recommend.Service)(nil)

const fetchFailedMessage = "Failed to fetch recommendations. Please check your internet connection and Last.fm API status."

// Handlers contains HTTP handlers for the JSON API.
type Handlers struct {
	svc    Recommender
	logger *zap.Logger
	now    func() time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc Recommender, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{svc: svc, logger: logger, now: time.Now}
}

type debugInfo struct {
	Count         int     `json:"count"`
	Expected      int     `json:"expected"`
	Shortfall     bool    `json:"shortfall"`
	ExecutionTime float64 `json:"execution_time"`
	Timestamp     int64   `json:"timestamp"`
	Message       string  `json:"message,omitempty"`
}

type recommendationsResponse struct {
	Recommendations []recommend.Record `json:"recommendations"`
	CacheExpiry     int64              `json:"cache_expiry"`
	Debug           debugInfo          `json:"debug"`
}

type replacementResponse struct {
	Recommendation *recommend.Record `json:"recommendation"`
}

type expiryResponse struct {
	Expiry int64 `json:"expiry"`
}

type errorResponse struct {
	Error string     `json:"error"`
	Debug *debugInfo `json:"debug,omitempty"`
}

type excludeListResponse struct {
	Artists []string `json:"artists"`
}

type excludeRequest struct {
	Artist string `json:"artist"`
}

type excludeResponse struct {
	Success bool   `json:"success"`
	Added   bool   `json:"added,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Recommendations serves a full set (GET /api/recommendations).
//
// ?refresh purges the cache first, ?replace returns one replacement record
// skipping any ?skip names, and ?cache_expiry returns only the expiry.
func (h *Handlers) Recommendations(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	q := r.URL.Query()

	if q.Has("cache_expiry") {
		h.CacheExpiry(w, r)
		return
	}

	if q.Has("refresh") {
		if err := h.svc.PurgeCache(r.Context()); err != nil {
			h.logger.Error("cache purge failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to clear cache"})
			return
		}
	}

	if q.Has("replace") {
		h.replace(w, r, q["skip"])
		return
	}

	records, err := h.svc.GetRecommendations(r.Context(), false)
	shortfall := recommend.IsShortfall(err)
	if err != nil && !shortfall {
		h.fail(w, start, err)
		return
	}
	if len(records) == 0 {
		h.fail(w, start, errors.New("No recommendations found - please try refreshing"))
		return
	}

	writeJSON(w, http.StatusOK, recommendationsResponse{
		Recommendations: records,
		CacheExpiry:     h.svc.CacheExpiry(r.Context()),
		Debug: debugInfo{
			Count:         len(records),
			Expected:      h.svc.TargetCount(),
			Shortfall:     shortfall,
			ExecutionTime: h.elapsed(start),
			Timestamp:     h.now().Unix(),
		},
	})
}

func (h *Handlers) replace(w http.ResponseWriter, r *http.Request, skip []string) {
	records, err := h.svc.Replace(r.Context(), skip)
	if err != nil {
		h.logger.Error("replacement failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: fetchFailedMessage})
		return
	}

	var resp replacementResponse
	if len(records) > 0 {
		resp.Recommendation = &records[0]
	}
	writeJSON(w, http.StatusOK, resp)
}

// CacheExpiry returns the seconds until the cached set expires
// (GET /api/cache-expiry).
func (h *Handlers) CacheExpiry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, expiryResponse{Expiry: h.svc.CacheExpiry(r.Context())})
}

// Exclude adds an artist to the exclusion list (POST /api/exclude).
// The name comes from a JSON body or the "artist" form field.
func (h *Handlers) Exclude(w http.ResponseWriter, r *http.Request) {
	artist, err := readArtist(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, excludeResponse{Error: "Invalid request body"})
		return
	}

	added, err := h.svc.AddToExcludeList(r.Context(), artist)
	var perr *store.PersistenceError
	switch {
	case errors.Is(err, exclude.ErrEmptyName):
		writeJSON(w, http.StatusBadRequest, excludeResponse{Error: "Artist name is required"})
		return
	case errors.As(err, &perr):
		h.logger.Error("exclusion list not writable", zap.String("artist", artist), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, excludeResponse{Error: "Failed to add artist to exclude list"})
		return
	case err != nil:
		h.logger.Error("exclude failed", zap.String("artist", artist), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, excludeResponse{Error: "Failed to add artist to exclude list"})
		return
	}

	writeJSON(w, http.StatusOK, excludeResponse{
		Success: true,
		Added:   added,
		Message: "Artist excluded successfully",
	})
}

// ExcludeList returns the excluded names (GET /api/exclude).
func (h *Handlers) ExcludeList(w http.ResponseWriter, r *http.Request) {
	names, err := h.svc.ExcludeList(r.Context())
	if err != nil {
		h.logger.Error("reading exclusion list failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to read exclude list"})
		return
	}
	writeJSON(w, http.StatusOK, excludeListResponse{Artists: names})
}

// PurgeCache deletes every cached entry (DELETE /api/cache).
func (h *Handlers) PurgeCache(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.PurgeCache(r.Context()); err != nil {
		h.logger.Error("cache purge failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to clear cache"})
		return
	}
	writeJSON(w, http.StatusOK, excludeResponse{Success: true, Message: "Cache cleared"})
}

// Health reports liveness (GET /healthz).
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) fail(w http.ResponseWriter, start time.Time, err error) {
	h.logger.Error("recommendations failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Error: fetchFailedMessage,
		Debug: &debugInfo{
			Expected:      h.svc.TargetCount(),
			ExecutionTime: h.elapsed(start),
			Timestamp:     h.now().Unix(),
			Message:       err.Error(),
		},
	})
}

func (h *Handlers) elapsed(start time.Time) float64 {
	return float64(h.now().Sub(start).Milliseconds()) / 1000
}

// readArtist extracts the artist name from a JSON or form request.
func readArtist(r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req excludeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", err
		}
		return req.Artist, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", err
	}
	return strings.TrimSpace(r.PostFormValue("artist")), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
