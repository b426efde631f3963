package routers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Oniqq60/civic_report_system/internal/apperr"
	"github.com/Oniqq60/civic_report_system/internal/auth"
	"github.com/Oniqq60/civic_report_system/internal/dto"
	"github.com/Oniqq60/civic_report_system/internal/storage"
	"github.com/Oniqq60/civic_report_system/internal/task"
)

const evidencePrefix = "evidence"

type imageRoutes struct {
	deps Dependencies
}

// handleUpload сохраняет фото-подтверждение; ключ затем передаётся как evidenceImageId
func (h *imageRoutes) handleUpload(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := readImage(r, "image", h.deps.MaxImageSize)
	if err != nil {
		writeError(w, h.deps.Logger, err)
		return
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if !storage.AllowedImageType(contentType) {
		writeError(w, h.deps.Logger, apperr.Newf(apperr.Validation, "unsupported image type %q", contentType))
		return
	}

	key := storage.ContentKey(evidencePrefix, data, contentType)
	exists, err := h.deps.Objects.Exists(r.Context(), key)
	if err != nil {
		h.deps.Logger.Warn("object existence check failed, uploading anyway", zap.String("key", key), zap.Error(err))
	}
	if !exists {
		if err := h.deps.Objects.Put(r.Context(), key, data, contentType); err != nil {
			writeError(w, h.deps.Logger, apperr.New(apperr.Collaborator, "image upload failed", err))
			return
		}
	}

	writeJSON(w, h.deps.Logger, http.StatusCreated, dto.ImageUploadResponse{
		Key:         key,
		ContentType: contentType,
		Size:        len(data),
	})
}

func (h *imageRoutes) handleGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if !storage.ValidKey(key) {
		writeError(w, h.deps.Logger, apperr.New(apperr.Validation, "invalid image key", nil))
		return
	}

	allowed, err := h.canViewImage(r, key)
	if err != nil {
		writeError(w, h.deps.Logger, err)
		return
	}
	if !allowed {
		writeError(w, h.deps.Logger, apperr.New(apperr.NotFound, "image not found", nil))
		return
	}

	data, err := h.deps.Objects.Get(r.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, h.deps.Logger, apperr.New(apperr.NotFound, "image not found", err))
		return
	}
	if err != nil {
		writeError(w, h.deps.Logger, apperr.New(apperr.Collaborator, "image fetch failed", err))
		return
	}

	w.Header().Set("Content-Type", storage.ContentTypeFromKey(key))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	// ключ вычислен из содержимого, блоб не меняется
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// canViewImage: заявитель видит только снимки своих обращений, персонал - любые
func (h *imageRoutes) canViewImage(r *http.Request, key string) (bool, error) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return false, nil
	}
	if claims.Role != auth.RoleCitizen {
		return true, nil
	}

	tasks, err := h.deps.Tasks.List(r.Context(), task.Filter{ReporterID: &claims.UserID})
	if err != nil {
		return false, err
	}
	for _, t := range tasks {
		if t.HasImage(key) {
			return true, nil
		}
	}
	return false, nil
}
