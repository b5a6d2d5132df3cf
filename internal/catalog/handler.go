// internal/catalog/handler.go
package catalog

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"printshop/internal/apperror"
	"printshop/internal/pricing"
	"printshop/internal/web"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}
	q, err := parseQuery(r)
	if err != nil {
		apperror.Write(w, err)
		return
	}

	items, err := h.service.ListForUser(r.Context(), actor, q)
	if err != nil {
		apperror.Write(w, err)
		return
	}
	web.JSON(w, http.StatusOK, items)
}

func (h *Handler) HandleAdminList(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}
	items, err := h.service.AdminList(r.Context(), actor, r.URL.Query().Get("branch"))
	if err != nil {
		apperror.Write(w, err)
		return
	}
	web.JSON(w, http.StatusOK, items)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}
	var req ProductInput
	if !web.Decode(w, r, &req) {
		return
	}

	p, err := h.service.AddProduct(r.Context(), actor, req)
	if err != nil {
		apperror.Write(w, err)
		return
	}
	web.JSON(w, http.StatusCreated, p)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}
	id, ok := web.IDParam(w, r, "productID")
	if !ok {
		return
	}
	var req ProductPatch
	if !web.Decode(w, r, &req) {
		return
	}

	p, err := h.service.UpdateProduct(r.Context(), actor, id, req)
	if err != nil {
		apperror.Write(w, err)
		return
	}
	web.JSON(w, http.StatusOK, p)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}
	id, ok := web.IDParam(w, r, "productID")
	if !ok {
		return
	}

	if err := h.service.RemoveProduct(r.Context(), actor, id); err != nil {
		apperror.Write(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}
	id, ok := web.IDParam(w, r, "productID")
	if !ok {
		return
	}

	l, err := h.service.Quote(r.Context(), actor, id)
	if err != nil {
		apperror.Write(w, err)
		return
	}
	web.JSON(w, http.StatusOK, l)
}

func (h *Handler) HandleBranchConfig(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}
	cfg, err := h.service.BranchConfig(r.Context(), actor, chi.URLParam(r, "branch"))
	if err != nil {
		apperror.Write(w, err)
		return
	}
	web.JSON(w, http.StatusOK, cfg)
}

func (h *Handler) HandleUpdateBranchConfig(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}
	var req pricing.Config
	if !web.Decode(w, r, &req) {
		return
	}

	cfg, err := h.service.UpdateBranchConfig(r.Context(), actor, chi.URLParam(r, "branch"), req)
	if err != nil {
		apperror.Write(w, err)
		return
	}
	web.JSON(w, http.StatusOK, cfg)
}

func parseQuery(r *http.Request) (Query, error) {
	values := r.URL.Query()
	q := Query{
		Branch: values.Get("branch"),
		Search: values.Get("q"),
	}

	ids := []struct {
		name string
		dst  **int64
	}{
		{"faculty_id", &q.Hierarchy.FacultyID},
		{"track_id", &q.Hierarchy.TrackID},
		{"year_id", &q.Hierarchy.YearID},
		{"module_id", &q.Hierarchy.ModuleID},
		{"group_id", &q.Hierarchy.GroupID},
		{"professor_id", &q.ProfessorID},
	}
	for _, f := range ids {
		raw := strings.TrimSpace(values.Get(f.name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Query{}, apperror.ErrInvalidInput.WithMessage("invalid " + f.name)
		}
		*f.dst = &v
	}

	for _, f := range []struct {
		name string
		dst  *int
	}{{"limit", &q.Limit}, {"offset", &q.Offset}} {
		raw := values.Get(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return Query{}, apperror.ErrInvalidInput.WithMessage("invalid " + f.name)
		}
		*f.dst = v
	}
	return q, nil
}
