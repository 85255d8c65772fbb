package httpapi

import (
	"net/http"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/catalog"
	"github.com/jonwraymond/toolgate/gateway"
)

// CallRequest is the body of POST /tools/call.
type CallRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ListResponse is the body of GET /tools.
type ListResponse struct {
	Tools []catalog.ToolInfo `json:"tools"`
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools, err := s.gw.ListTools(r.Context(), auth.RequestFromHTTP(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tools == nil {
		tools = []catalog.ToolInfo{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Tools: tools})
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	cred := auth.RequestFromHTTP(r)
	// Authenticate first so a malformed body from an anonymous caller is
	// still a 401.
	id, err := s.gw.Authenticate(r.Context(), cred)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req CallRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Name == "" {
		s.writeGatewayError(w, &gateway.Error{Kind: gateway.KindInvalidArguments, Message: "name is required", Param: "name"})
		return
	}

	resp := s.gw.InvokeAs(r.Context(), id, gateway.Request{
		Tool:      req.Name,
		Arguments: req.Arguments,
		Transport: TransportName,
	})
	if resp.IsError() {
		s.writeGatewayError(w, resp.Error)
		return
	}
	if resp.Cached {
		w.Header().Set("X-Cache", "hit")
	}
	writeJSON(w, http.StatusOK, resp)
}
