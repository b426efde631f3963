package routers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Oniqq60/civic_report_system/internal/apperr"
	"github.com/Oniqq60/civic_report_system/internal/dto"
)

const maxBodySize = 1 << 20 // 1MB

var (
	errEmptyBody   = errors.New("request body is empty")
	errUnknownBody = errors.New("request body contains unexpected data")
)

func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return apperr.New(apperr.Validation, errEmptyBody.Error(), errEmptyBody)
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.Validation, errEmptyBody.Error(), err)
		}
		return apperr.New(apperr.Validation, "invalid json: "+err.Error(), err)
	}
	if decoder.More() {
		return apperr.New(apperr.Validation, errUnknownBody.Error(), errUnknownBody)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	// сообщения вида "ongoing -> reported" отдаются как есть
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		logger.Warn("write json error", zap.Error(err))
	}
}

// writeError показывает клиенту только публичное сообщение, причина уходит в лог
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	appErr := apperr.From(err)
	status := appErr.Code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("code", appErr.Code.String()), zap.Error(err))
	}
	writeJSON(w, logger, status, dto.ErrorResponse{
		Success: false,
		Message: appErr.PublicMessage(),
		Code:    appErr.Code.String(),
	})
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("authorization header missing")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errors.New("authorization header must be Bearer token")
	}
	return strings.TrimSpace(parts[1]), nil
}
