package rest

import (
	"net/http"
	"time"

	"timebox/internal/auth"
	"timebox/internal/middleware"
	"timebox/internal/rpc"
)

const refreshCookie = "refresh_token"

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Name     string `json:"name" validate:"required,max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type sessionResponse struct {
	UserID       string `json:"userId"`
	Name         string `json:"name"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

func (a *api) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !a.decode(w, r, &req) {
		return
	}
	s, err := a.planner.Register(r.Context(), &rpc.RegisterRequest{Email: req.Email, Password: req.Password, Name: req.Name})
	if err != nil {
		a.fail(w, err)
		return
	}
	a.startSession(w, http.StatusCreated, s)
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !a.decode(w, r, &req) {
		return
	}
	s, err := a.planner.Login(r.Context(), &rpc.LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		a.fail(w, err)
		return
	}
	a.startSession(w, http.StatusOK, s)
}

// refresh takes the token from the body, falling back to the cookie.
func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength != 0 && !a.decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		if c, err := r.Cookie(refreshCookie); err == nil {
			req.RefreshToken = c.Value
		}
	}
	s, err := a.planner.Refresh(r.Context(), &rpc.RefreshRequest{RefreshToken: req.RefreshToken})
	if err != nil {
		a.fail(w, err)
		return
	}
	a.startSession(w, http.StatusOK, s)
}

func (a *api) logout(w http.ResponseWriter, r *http.Request) {
	if _, err := a.planner.Logout(r.Context(), &rpc.Empty{}); err != nil {
		a.fail(w, err)
		return
	}
	a.setCookie(w, middleware.AccessCookie, "", "/", -1)
	a.setCookie(w, refreshCookie, "", "/auth", -1)
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) startSession(w http.ResponseWriter, code int, s *rpc.Session) {
	a.setCookie(w, middleware.AccessCookie, s.Token, "/", auth.AccessTTL)
	a.setCookie(w, refreshCookie, s.RefreshToken, "/auth", auth.RefreshTTL)
	writeJSON(w, code, sessionResponse{UserID: s.UserID, Name: s.Name, Token: s.Token, RefreshToken: s.RefreshToken})
}

// ttl < 0 deletes the cookie.
func (a *api) setCookie(w http.ResponseWriter, name, value, path string, ttl time.Duration) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	}
	if ttl < 0 {
		c.MaxAge = -1
	}
	http.SetCookie(w, c)
}
