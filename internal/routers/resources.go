package routers

import (
	"net/http"
	"strings"

	"github.com/Oniqq60/civic_report_system/internal/apperr"
	"github.com/Oniqq60/civic_report_system/internal/dto"
	"github.com/Oniqq60/civic_report_system/internal/resource"
)

type resourceRoutes struct {
	deps Dependencies
}

func (h *resourceRoutes) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := resource.Filter{Skill: strings.TrimSpace(q.Get("skill"))}
	if v := q.Get("status"); v != "" {
		status, ok := resource.ParseStatus(v)
		if !ok {
			writeError(w, h.deps.Logger, apperr.Newf(apperr.Validation, "invalid resource status %q", v))
			return
		}
		filter.Status = &status
	}

	resources, err := h.deps.Resources.Query(r.Context(), filter)
	if err != nil {
		writeError(w, h.deps.Logger, apperr.New(apperr.Collaborator, "resource directory failure", err))
		return
	}
	if resources == nil {
		resources = []resource.Resource{}
	}
	writeJSON(w, h.deps.Logger, http.StatusOK, dto.ResourceListResponse{Resources: resources, Count: len(resources)})
}
