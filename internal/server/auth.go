package server

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenTTL is the lifetime of issued admin tokens.
const tokenTTL = 24 * time.Hour

// TokenRequest is the request body for /auth/token.
type TokenRequest struct {
	Secret string `json:"secret"`
}

// TokenResponse carries an issued admin token.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// handleIssueToken exchanges the shared secret for a short-lived JWT.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.secretMatches(req.Secret) {
		s.errorResponse(w, http.StatusUnauthorized, "invalid secret")
		return
	}

	expires := time.Now().Add(tokenTTL)
	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtSecret))
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to sign token")
		return
	}

	s.jsonResponse(w, http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: expires.UTC().Format(time.RFC3339),
	})
}

// requireAuth accepts either the shared secret or a JWT issued by
// /auth/token as a bearer credential.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		bearer, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || bearer == "" {
			s.errorResponse(w, http.StatusUnauthorized, "missing bearer credential")
			return
		}

		if s.secretMatches(bearer) || s.tokenValid(bearer) {
			next.ServeHTTP(w, r)
			return
		}
		s.errorResponse(w, http.StatusUnauthorized, "invalid credential")
	})
}

func (s *Server) secretMatches(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.secret)) == 1
}

func (s *Server) tokenValid(raw string) bool {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	return err == nil && token.Valid
}
