package lockout

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

func (h *Handler) HandleUnblock(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}
	id, ok := web.IDParam(w, r, "userID")
	if !ok {
		return
	}

	u, err := h.service.Unblock(r.Context(), actor, id)
	if err != nil {
		apperror.Write(w, err)
		return
	}
	web.JSON(w, http.StatusOK, u)
}

func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}
	evts, err := h.service.Events(r.Context(), actor)
	if err != nil {
		apperror.Write(w, err)
		return
	}
	web.JSON(w, http.StatusOK, evts)
}
