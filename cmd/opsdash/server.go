package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unkn0wn-root/opscache"
	"github.com/unkn0wn-root/opscache/guard"
	"github.com/unkn0wn-root/opscache/session"
)

type server struct {
	sess      *session.Store
	guard     *guard.Guard
	shops     opscache.Coordinator[ShopInfo]
	fetchShop func(token string) opscache.FetchFunc[ShopInfo]
	log       opscache.Logger
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("OK")) })

	r.Post("/login", s.login)
	r.Post("/logout", s.logout)
	r.Get("/session", s.session)
	r.Post("/session/validate", s.validate)

	api := chi.NewRouter()
	api.Use(s.requireOwner, s.guard.Middleware)
	api.Get("/shop-info", s.shopInfo)
	api.Post("/shop-info/invalidate", s.invalidateShopInfo)
	r.Mount("/api", api)

	return r
}

type loginRequest struct {
	Token string            `json:"token"`
	User  *session.Identity `json:"user"`
	Roles []session.Role    `json:"roles"`
}

// login installs the credentials the auth server issued to the client.
func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := s.sess.Login(r.Context(), req.Token, req.User, req.Roles); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// a new identity may see different shop data
	s.shops.InvalidateAll()

	if to := r.URL.Query().Get("redirect"); to != "" && to[0] == '/' && (len(to) == 1 || to[1] != '/') {
		http.Redirect(w, r, to, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, s.view())
}

// owns reports whether r carries the session's access token. The process
// holds one session; only its holder may read or end it.
func (s *server) owns(r *http.Request) bool {
	tok := s.sess.Token()
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && tok != "" && subtle.ConstantTimeCompare([]byte(got), []byte(tok)) == 1
}

// requireOwner sends callers without the session token to the login page.
// The session itself is left alone; it belongs to someone else.
func (s *server) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.owns(r) {
			http.Redirect(w, r, s.guard.LoginURL(r.URL.RequestURI()), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	if !s.owns(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not the session holder"})
		return
	}
	s.sess.Reset(context.WithoutCancel(r.Context()))
	s.shops.InvalidateAll()
	w.WriteHeader(http.StatusNoContent)
}

type sessionView struct {
	Authenticated bool              `json:"authenticated"`
	Expired       bool              `json:"expired"`
	User          *session.Identity `json:"user,omitempty"`
	Roles         []session.Role    `json:"roles"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty"`
	Revision      uint64            `json:"revision"`
}

func (s *server) view() sessionView {
	snap := s.sess.Snapshot()
	v := sessionView{
		Authenticated: snap.Authenticated(),
		Expired:       guard.Expired(snap, s.sess.Now()),
		User:          snap.User,
		Roles:         snap.Roles,
		Revision:      snap.Revision,
	}
	if v.Roles == nil {
		v.Roles = []session.Role{}
	}
	if t, ok := snap.Expiry(); ok {
		v.ExpiresAt = &t
	}
	return v
}

func (s *server) session(w http.ResponseWriter, r *http.Request) {
	if !s.owns(r) {
		writeJSON(w, http.StatusOK, sessionView{Expired: true, Roles: []session.Role{}})
		return
	}
	writeJSON(w, http.StatusOK, s.view())
}

func (s *server) validate(w http.ResponseWriter, r *http.Request) {
	if !s.owns(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"valid": false, "error": "not the session holder"})
		return
	}
	ok, err := s.guard.ValidateRemotely(r.Context())
	if ok {
		writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
		return
	}
	status := http.StatusUnauthorized
	if opscache.KindOf(err) == opscache.KindTransport {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]any{"valid": false, "error": errString(err)})
}

func (s *server) shopInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.shops.Get(r.Context(), shopInfoKey, s.fetchShop(s.sess.Token()))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *server) invalidateShopInfo(w http.ResponseWriter, _ *http.Request) {
	s.shops.Invalidate(shopInfoKey)
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded) && opscache.KindOf(err) == opscache.KindUnknown:
		status = http.StatusGatewayTimeout
	case opscache.KindOf(err) == opscache.KindTransport:
		status = http.StatusBadGateway
	case opscache.KindOf(err) == opscache.KindValidation:
		status = http.StatusUnauthorized
	}
	s.log.Warn("request failed", opscache.Fields{"status": status, "err": err})
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
