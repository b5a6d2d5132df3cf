// Package web holds the request plumbing shared by the domain handlers.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"printshop/internal/apperror"
	"printshop/internal/store"
	"printshop/internal/validation"
)

type actorKey struct{}

// WithActor attaches the authenticated user to ctx.
func WithActor(ctx context.Context, u store.User) context.Context {
	return context.WithValue(ctx, actorKey{}, u)
}

// ActorFromContext returns the authenticated user, if any.
func ActorFromContext(ctx context.Context) (store.User, bool) {
	u, ok := ctx.Value(actorKey{}).(store.User)
	return u, ok
}

// Actor returns the authenticated user or writes 401 and reports false.
func Actor(w http.ResponseWriter, r *http.Request) (store.User, bool) {
	u, ok := ActorFromContext(r.Context())
	if !ok {
		apperror.Write(w, apperror.ErrUnauthenticated)
	}
	return u, ok
}

// Token extracts the session token from X-Token or a bearer Authorization
// header.
func Token(r *http.Request) string {
	if t := r.Header.Get("X-Token"); t != "" {
		return strings.TrimSpace(t)
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// Decode reads a JSON body into dst and validates it. On failure the error
// response has already been written.
func Decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apperror.Write(w, apperror.ErrInvalidInput.WithMessage("malformed JSON body"))
		return false
	}
	if err := validation.Struct(dst); err != nil {
		apperror.Write(w, err)
		return false
	}
	return true
}

// DecodeLenient reads a JSON body into dst and never fails the request. A
// malformed body leaves dst at its zero value, so the service decides which
// of its checks reports first.
func DecodeLenient(r *http.Request, dst interface{}) {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		reset(dst)
	}
}

func reset(dst interface{}) {
	v := reflect.ValueOf(dst)
	if v.Kind() == reflect.Pointer && !v.IsNil() {
		v.Elem().Set(reflect.Zero(v.Elem().Type()))
	}
}

// IDParam parses a positive integer URL parameter.
func IDParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		apperror.Write(w, apperror.ErrInvalidInput.WithMessage("invalid "+name))
		return 0, false
	}
	return id, true
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
