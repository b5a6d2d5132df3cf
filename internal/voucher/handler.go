// internal/voucher/handler.go
package voucher

import (
	"bytes"
	"net/http"

	"printshop/internal/apperror"
	"printshop/internal/web"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type generateRequest struct {
	Amount  int64 `json:"amount" validate:"required"`
	StaffID int64 `json:"staff_id" validate:"required,gt=0"`
	Count   int   `json:"count"`
}

type visibilityRequest struct {
	StaffID *int64 `json:"staff_id" validate:"omitempty,gt=0"`
}

type redeemRequest struct {
	Code string `json:"code"`
}

func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}
	var req generateRequest
	if !web.Decode(w, r, &req) {
		return
	}

	codes, err := h.service.Generate(r.Context(), actor, req.Amount, req.StaffID, req.Count)
	if err != nil {
		apperror.Write(w, err)
		return
	}
	web.JSON(w, http.StatusCreated, codes)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}
	codes, err := h.service.List(r.Context(), actor)
	if err != nil {
		apperror.Write(w, err)
		return
	}
	web.JSON(w, http.StatusOK, codes)
}

func (h *Handler) HandleSetVisibility(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}
	id, ok := web.IDParam(w, r, "codeID")
	if !ok {
		return
	}
	var req visibilityRequest
	if !web.Decode(w, r, &req) {
		return
	}

	code, err := h.service.SetVisibility(r.Context(), actor, id, req.StaffID)
	if err != nil {
		apperror.Write(w, err)
		return
	}
	web.JSON(w, http.StatusOK, code)
}

func (h *Handler) HandleHide(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}
	id, ok := web.IDParam(w, r, "codeID")
	if !ok {
		return
	}

	code, err := h.service.Hide(r.Context(), actor, id)
	if err != nil {
		apperror.Write(w, err)
		return
	}
	web.JSON(w, http.StatusOK, code)
}

func (h *Handler) HandleMarkSold(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}
	id, ok := web.IDParam(w, r, "codeID")
	if !ok {
		return
	}

	sale, err := h.service.MarkSold(r.Context(), actor, id)
	if err != nil {
		apperror.Write(w, err)
		return
	}
	web.JSON(w, http.StatusOK, sale)
}

func (h *Handler) HandleRedeem(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}
	var req redeemRequest
	web.DecodeLenient(r, &req)

	res, err := h.service.Redeem(r.Context(), actor, req.Code)
	if err != nil {
		apperror.Write(w, err)
		return
	}
	web.JSON(w, http.StatusOK, res)
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}
	stats, err := h.service.Stats(r.Context(), actor)
	if err != nil {
		apperror.Write(w, err)
		return
	}
	web.JSON(w, http.StatusOK, stats)
}

func (h *Handler) HandleExportStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}

	// Buffer so a failure can still be reported as a JSON error.
	var buf bytes.Buffer
	if err := h.service.ExportStats(r.Context(), actor, &buf); err != nil {
		apperror.Write(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="code-stats.xlsx"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
