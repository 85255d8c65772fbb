package httpapi

import (
	"errors"
	"net/http"

	"github.com/jonwraymond/toolgate/gateway"
)

// KindNotFound reports a missing or already revoked API key.
const KindNotFound gateway.Kind = "not_found"

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Error string       `json:"error"`
	Kind  gateway.Kind `json:"kind"`
	Param string       `json:"param,omitempty"`
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(kind gateway.Kind) int {
	switch kind {
	case gateway.KindUnauthenticated:
		return http.StatusUnauthorized
	case gateway.KindForbidden:
		return http.StatusForbidden
	case gateway.KindUnknownTool, KindNotFound:
		return http.StatusNotFound
	case gateway.KindInvalidArguments:
		return http.StatusBadRequest
	case gateway.KindRateLimited:
		return http.StatusTooManyRequests
	case gateway.KindTimeout:
		return http.StatusGatewayTimeout
	case gateway.KindTokenAcquisition:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var gwErr *gateway.Error
	if !errors.As(err, &gwErr) {
		s.logger.Error(r.Context(), "request failed", logFields(r, "error", err)...)
		gwErr = &gateway.Error{Kind: gateway.KindInternal, Message: "internal error"}
	}
	s.writeGatewayError(w, gwErr)
}

func (s *Server) writeGatewayError(w http.ResponseWriter, e *gateway.Error) {
	if e.Kind == gateway.KindUnauthenticated {
		w.Header().Set("WWW-Authenticate", s.challenge)
	}
	writeJSON(w, StatusFor(e.Kind), ErrorBody{Error: e.Message, Kind: e.Kind, Param: e.Param})
}

func badRequest(msg string) *gateway.Error {
	return &gateway.Error{Kind: gateway.KindInvalidArguments, Message: msg}
}

func notFound(msg string) *gateway.Error {
	return &gateway.Error{Kind: KindNotFound, Message: msg}
}

func withParam(e *gateway.Error, param string) *gateway.Error {
	e.Param = param
	return e
}
