// internal/order/handler.go
package order

import (
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

type createRequest struct {
	Items []CartItem `json:"items"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}
	var req createRequest
	web.DecodeLenient(r, &req)

	o, err := h.service.CreateOrder(r.Context(), actor, req.Items)
	if err != nil {
		apperror.Write(w, err)
		return
	}
	web.JSON(w, http.StatusCreated, o)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}
	orders, err := h.service.List(r.Context(), actor)
	if err != nil {
		apperror.Write(w, err)
		return
	}
	web.JSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleMarkPrinted(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}
	id, ok := web.IDParam(w, r, "orderID")
	if !ok {
		return
	}

	o, err := h.service.MarkPrinted(r.Context(), actor, id)
	if err != nil {
		apperror.Write(w, err)
		return
	}
	web.JSON(w, http.StatusOK, o)
}
