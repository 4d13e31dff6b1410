package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/Kakashki-pro/Shitgram/internal/apperr"
	"github.com/Kakashki-pro/Shitgram/internal/auth"
)

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthHandler struct {
	Auth     *auth.Service
	Sessions *auth.Sessions
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError answers with the status of the error's kind and a JSON body
// the browser client can show as is.
func writeError(w http.ResponseWriter, err error) {
	status := apperr.KindOf(err).HTTPStatus()
	if status == http.StatusInternalServerError {
		log.Printf("Request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": apperr.Message(err)})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	type RegisterRequest struct {
		Username  string `json:"username"`
		Password  string `json:"password"`
		PublicKey string `json:"publicKey"`
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.Validation, "invalid request body"))
		return
	}

	if _, err := h.Auth.Register(r.Context(), req.Username, req.Password, req.PublicKey); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]bool{"ok": true})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, apperr.New(apperr.Validation, "invalid request body"))
		return
	}

	user, err := h.Auth.Authenticate(r.Context(), creds.Username, creds.Password)
	if err != nil {
		if apperr.Is(err, apperr.Authorization) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": apperr.Message(err)})
			return
		}
		writeError(w, err)
		return
	}

	if err := h.Sessions.Login(w, r, user.ID); err != nil {
		writeError(w, apperr.Wrap(apperr.Transient, "save session", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"username":  user.Username,
		"publicKey": user.PublicKey,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Logout(w, r); err != nil {
		writeError(w, apperr.Wrap(apperr.Transient, "clear session", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
