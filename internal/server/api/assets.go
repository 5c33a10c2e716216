package api

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/ayusman/reelcam/internal/classify"
	"github.com/ayusman/reelcam/internal/store"
)

// AssetHandler serves /api/assets and its sub-resources.
type AssetHandler struct {
	store *store.Store
}

// NewAssetHandler creates a new AssetHandler with the given store.
func NewAssetHandler(s *store.Store) *AssetHandler {
	return &AssetHandler{store: s}
}

// ServeHTTP routes
//
//	GET    /api/assets
//	GET    /api/assets/{id}
//	DELETE /api/assets/{id}
//	GET    /api/assets/{id}/track?kind=corrected|manual
//	GET    /api/assets/{id}/classifications
func (h *AssetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/assets")
	path = strings.Trim(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	id, sub, _ := strings.Cut(path, "/")
	switch {
	case sub == "" && r.Method == http.MethodGet:
		h.get(w, r, id)
	case sub == "" && r.Method == http.MethodDelete:
		h.delete(w, r, id)
	case sub == "track" && r.Method == http.MethodGet:
		h.track(w, r, id)
	case sub == "classifications" && r.Method == http.MethodGet:
		h.classifications(w, r, id)
	case sub == "" || sub == "track" || sub == "classifications":
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	default:
		http.NotFound(w, r)
	}
}

type assetResponse struct {
	ID            string  `json:"id"`
	Path          string  `json:"path"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	Frames        int     `json:"frames"`
	Status        string  `json:"status"`
	RetentionRate float64 `json:"retention_rate"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

type listAssetsResponse struct {
	Assets []assetResponse `json:"assets"`
}

type classificationsResponse struct {
	AssetID         string                    `json:"asset_id"`
	Classifications []classify.Classification `json:"classifications"`
}

func toAssetResponse(a *store.Asset) assetResponse {
	return assetResponse{
		ID:            a.ID,
		Path:          a.Path,
		Width:         a.Width,
		Height:        a.Height,
		Frames:        a.Frames,
		Status:        string(a.Status),
		RetentionRate: a.RetentionRate,
		CreatedAt:     formatTime(a.CreatedAt),
		UpdatedAt:     formatTime(a.UpdatedAt),
	}
}

func (h *AssetHandler) list(w http.ResponseWriter, r *http.Request) {
	assets, err := h.store.Assets().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list assets")
		return
	}

	resp := listAssetsResponse{Assets: make([]assetResponse, 0, len(assets))}
	for _, a := range assets {
		resp.Assets = append(resp.Assets, toAssetResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AssetHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	a, ok := h.lookup(w, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toAssetResponse(a))
}

func (h *AssetHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Assets().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "asset not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete asset")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// track returns the stored track document verbatim.
func (h *AssetHandler) track(w http.ResponseWriter, r *http.Request, id string) {
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = store.TrackCorrected
	}
	if kind != store.TrackCorrected && kind != store.TrackManual {
		writeError(w, http.StatusBadRequest, "kind must be 'corrected' or 'manual'")
		return
	}
	if _, ok := h.lookup(w, id); !ok {
		return
	}

	data, err := h.store.Tracks().Get(id, kind)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no "+kind+" track for asset")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load track")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *AssetHandler) classifications(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := h.lookup(w, id); !ok {
		return
	}
	byTS, err := h.store.Classifications().ListByAsset(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load classifications")
		return
	}

	resp := classificationsResponse{AssetID: id, Classifications: make([]classify.Classification, 0, len(byTS))}
	for _, c := range byTS {
		resp.Classifications = append(resp.Classifications, c)
	}
	sort.Slice(resp.Classifications, func(i, j int) bool {
		return resp.Classifications[i].Timestamp < resp.Classifications[j].Timestamp
	})
	writeJSON(w, http.StatusOK, resp)
}

func (h *AssetHandler) lookup(w http.ResponseWriter, id string) (*store.Asset, bool) {
	a, err := h.store.Assets().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "asset not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "failed to get asset")
		return nil, false
	}
	return a, true
}
