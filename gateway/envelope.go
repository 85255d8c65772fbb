package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/jonwraymond/toolgate/auth"
)

// ContentTypeText is the only content block type the gateway emits.
const ContentTypeText = "text"

// Request is one inbound tool call.
type Request struct {
	Tool      string
	Arguments map[string]any

	// Credential carries the request headers holding the credential.
	Credential *auth.AuthRequest

	// Transport labels telemetry ("http", "mcp").
	Transport string
}

// ContentBlock is one piece of a successful result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Response is either Content or Error, never both.
type Response struct {
	Content []ContentBlock `json:"content,omitempty"`
	Error   *Error         `json:"error,omitempty"`

	// Cached reports a result served from the result cache.
	Cached bool `json:"-"`
}

// IsError reports whether the response carries an error.
func (r Response) IsError() bool { return r.Error != nil }

// Text joins the text of every content block.
func (r Response) Text() string {
	var out string
	for _, b := range r.Content {
		out += b.Text
	}
	return out
}

func success(text string, cached bool) Response {
	return Response{Content: []ContentBlock{{Type: ContentTypeText, Text: text}}, Cached: cached}
}

func failure(err error) Response {
	return Response{Error: classify(err)}
}

// render serializes a handler result to the text of a content block.
// Strings pass through; everything else is JSON encoded.
func render(v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return []byte{}, nil
	case string:
		return []byte(x), nil
	case json.RawMessage:
		return x, nil
	case []byte:
		return x, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, newError(KindInternal, err, "result of type %T is not serializable", v)
		}
		return b, nil
	}
}

func (r Response) String() string {
	if r.Error != nil {
		return fmt.Sprintf("error(%s)", r.Error.Kind)
	}
	return fmt.Sprintf("content(%d)", len(r.Content))
}
