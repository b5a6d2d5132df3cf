// internal/membership/handler.go
package membership

import (
	"net/http"

	"printshop/internal/apperror"
	"printshop/internal/profile"
	"printshop/internal/web"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterInput
	if !web.Decode(w, r, &req) {
		return
	}

	u, err := h.service.Register(r.Context(), req)
	if err != nil {
		apperror.Write(w, err)
		return
	}
	web.JSON(w, http.StatusCreated, u)
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !web.Decode(w, r, &req) {
		return
	}

	res, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		apperror.Write(w, err)
		return
	}
	web.JSON(w, http.StatusOK, res)
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), web.Token(r)); err != nil {
		apperror.Write(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}
	web.JSON(w, http.StatusOK, actor.Public())
}

func (h *Handler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}
	var req profile.Profile
	if !web.Decode(w, r, &req) {
		return
	}

	u, err := h.service.UpdateProfile(r.Context(), actor, req)
	if err != nil {
		apperror.Write(w, err)
		return
	}
	web.JSON(w, http.StatusOK, u)
}

func (h *Handler) HandleCreateStaff(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}
	var req StaffInput
	if !web.Decode(w, r, &req) {
		return
	}

	u, err := h.service.CreateStaff(r.Context(), actor, req)
	if err != nil {
		apperror.Write(w, err)
		return
	}
	web.JSON(w, http.StatusCreated, u)
}

func (h *Handler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := web.Actor(w, r)
	if !ok {
		return
	}
	users, err := h.service.ListUsers(r.Context(), actor)
	if err != nil {
		apperror.Write(w, err)
		return
	}
	web.JSON(w, http.StatusOK, users)
}
