package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"dydownloader/internal/client"
	"dydownloader/internal/config"
	"dydownloader/internal/core"
	"dydownloader/internal/manager"
	"dydownloader/internal/tracker"
	"dydownloader/internal/ui"
	"dydownloader/internal/utils"
)

var log = utils.Component("API")

type Handler struct {
	config  *config.Config
	session *manager.Session
}

func NewHandler(cfg *config.Config, session *manager.Session) *Handler {
	return &Handler{
		config:  cfg,
		session: session,
	}
}

// FormatOption is a selectable format with its display label.
type FormatOption struct {
	FormatID string `json:"format_id"`
	Label    string `json:"label"`
}

type infoResponse struct {
	*core.VideoInfo
	Options []FormatOption `json:"options"`
}

type stateResponse struct {
	tracker.State
	Message string `json:"message"`
}

func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.config.Redacted())
}

func (h *Handler) GetInfo(w http.ResponseWriter, r *http.Request) {
	if h.session == nil {
		http.Error(w, "Session not initialized", http.StatusInternalServerError)
		return
	}

	var request struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		log.Warning("GetInfo: Invalid JSON: %v", err)
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	info, err := h.session.FetchInfo(r.Context(), request.URL)
	if err != nil {
		writeError(w, err)
		return
	}

	options := make([]FormatOption, 0, len(info.Streams))
	for _, s := range info.Streams {
		options = append(options, FormatOption{FormatID: s.FormatID, Label: ui.OptionLabel(s)})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(infoResponse{VideoInfo: info, Options: options})
}

func (h *Handler) StartDownload(w http.ResponseWriter, r *http.Request) {
	if h.session == nil {
		http.Error(w, "Session not initialized", http.StatusInternalServerError)
		return
	}

	var request core.DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		log.Warning("StartDownload: Invalid JSON: %v", err)
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if request.SaveLocation == "" {
		request.SaveLocation = h.config.DefaultSaveLocation
	}

	log.Info("StartDownload request: URL=%s, Format=%s, SaveLocation=%s", request.URL, request.FormatID, request.SaveLocation)

	job, err := h.session.StartDownload(r.Context(), request)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(job)
}

func (h *Handler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	if h.session == nil {
		http.Error(w, "Session not initialized", http.StatusInternalServerError)
		return
	}

	writeState(w, h.session.State())
}

func (h *Handler) CancelCurrent(w http.ResponseWriter, r *http.Request) {
	if h.session == nil {
		http.Error(w, "Session not initialized", http.StatusInternalServerError)
		return
	}

	h.session.Cancel()
	writeState(w, h.session.State())
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.session == nil {
		http.Error(w, "Session not initialized", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.session.History(r.Context()))
}

func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if h.session == nil {
		http.Error(w, "Session not initialized", http.StatusInternalServerError)
		return
	}

	h.session.ClearHistory(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func writeState(w http.ResponseWriter, st tracker.State) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stateResponse{State: st, Message: ui.StatusMessage(st)})
}

// writeError maps session errors onto HTTP statuses: setup errors are the
// caller's fault, anything from the backend is a bad gateway.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrMissingURL),
		errors.Is(err, core.ErrMissingFormat),
		errors.Is(err, core.ErrMissingCustomLocation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			log.Error("Backend error (%d): %s", apiErr.StatusCode, apiErr.Message)
		} else {
			log.Error("Request failed: %v", err)
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}
