package rest

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/ipeimoveis/crm-backend/internal"
	"github.com/ipeimoveis/crm-backend/internal/storage"
)

// FilesHandler serves signed download links. The HMAC in the URL is the
// only credential; no session is required.
type FilesHandler struct {
	backend *storage.LocalBackend
	logger  *slog.Logger
}

func NewFilesHandler(backend *storage.LocalBackend, logger *slog.Logger) *FilesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilesHandler{backend: backend, logger: logger}
}

func (h *FilesHandler) Serve(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || key == "" {
		http.Error(w, "invalid file key", http.StatusBadRequest)
		return
	}

	expires, err := strconv.ParseInt(r.URL.Query().Get("expires"), 10, 64)
	if err != nil {
		http.Error(w, "invalid expiry", http.StatusBadRequest)
		return
	}
	sig := r.URL.Query().Get("sig")

	if err := h.backend.VerifySignature(key, expires, sig); err != nil {
		if appErr, ok := internal.IsAppError(err); ok {
			http.Error(w, appErr.Message, http.StatusForbidden)
			return
		}
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	body, info, err := h.backend.Download(r.Context(), key)
	if err != nil {
		if appErr, ok := internal.IsAppError(err); ok && appErr.StatusCode == http.StatusNotFound {
			http.Error(w, "file not found", http.StatusNotFound)
			return
		}
		h.logger.Error("signed download failed", "key", key, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	defer body.Close()

	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(key)+`"`)
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}

	if _, err := io.Copy(w, body); err != nil {
		h.logger.Error("streaming file failed", "key", key, "error", err)
	}
}
