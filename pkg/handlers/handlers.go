package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edgeix/peerbot/pkg/directory"
)

// VersionInfo is reported by the version endpoint.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Handlers serves the lookup API over the route server directory.
type Handlers struct {
	Dir     *directory.Directory
	Log     *slog.Logger
	Version VersionInfo
}

type advisoryResponse struct {
	Message string `json:"message"`
}

// GetASN looks up a single ASN: 400 on unparseable input, 404 when the
// ASN is absent from every route server, 200 with the rows otherwise.
func (h *Handlers) GetASN(w http.ResponseWriter, r *http.Request) {
	input := chi.URLParam(r, "asn")
	result := h.Dir.Lookup(r.Context(), input)

	switch result.Kind {
	case directory.ResultInvalidInput:
		h.writeJSON(w, http.StatusBadRequest, advisoryResponse{Message: "please enter a valid ASN"})
	case directory.ResultNotFound:
		h.writeJSON(w, http.StatusNotFound, advisoryResponse{Message: "ASN is not present on any route servers"})
	default:
		h.writeJSON(w, http.StatusOK, result)
	}
}

// GetASNs returns the full ASN index.
func (h *Handlers) GetASNs(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.Dir.ASNIndex(r.Context()))
}

// GetIPs returns the full neighbor IP index.
func (h *Handlers) GetIPs(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.Dir.IPIndex(r.Context()))
}

// GetVersion returns build information.
func (h *Handlers) GetVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.Version)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Log.Error("handlers: failed to encode response", "error", err)
	}
}
