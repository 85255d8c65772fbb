package httpapi

import (
	"errors"
	"net/http"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/keys"
)

// CreateKeyRequest is the body of POST /keys.
type CreateKeyRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// KeyListResponse is the body of GET /keys.
type KeyListResponse struct {
	Keys []keys.Key `json:"keys"`
}

// RevokeResponse is the body of a successful DELETE /keys/{id}.
type RevokeResponse struct {
	ID      string `json:"id"`
	Revoked bool   `json:"revoked"`
}

// admin authenticates the request and requires key:*:manage.
func (s *Server) admin(w http.ResponseWriter, r *http.Request) bool {
	id, err := s.gw.Authenticate(r.Context(), auth.RequestFromHTTP(r))
	if err == nil {
		err = s.gw.Authorize(r.Context(), auth.KeyManage(id))
	}
	if err != nil {
		s.writeError(w, r, err)
		return false
	}
	return true
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	if !s.admin(w, r) {
		return
	}
	list, err := s.keys.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []keys.Key{}
	}
	writeJSON(w, http.StatusOK, KeyListResponse{Keys: list})
}

func (s *Server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	if !s.admin(w, r) {
		return
	}
	var req CreateKeyRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	issued, err := s.keys.Create(r.Context(), req.Name, req.Permissions)
	switch {
	case errors.Is(err, keys.ErrInvalidName):
		s.writeGatewayError(w, withParam(badRequest(err.Error()), "name"))
		return
	case errors.Is(err, keys.ErrInvalidPermission):
		s.writeGatewayError(w, withParam(badRequest(err.Error()), "permissions"))
		return
	case err != nil:
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusCreated, issued)
}

func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	if !s.admin(w, r) {
		return
	}
	key, err := s.keys.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, keys.ErrNotFound) {
		s.writeGatewayError(w, notFound("key not found"))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, key)
}

func (s *Server) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	if !s.admin(w, r) {
		return
	}
	id := r.PathValue("id")
	changed, err := s.keys.Revoke(r.Context(), id)
	if errors.Is(err, keys.ErrNotFound) {
		s.writeGatewayError(w, notFound("key not found"))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !changed {
		s.writeGatewayError(w, notFound("key already revoked"))
		return
	}
	writeJSON(w, http.StatusOK, RevokeResponse{ID: id, Revoked: true})
}
