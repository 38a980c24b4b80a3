// internal/relay/client.go
//
// Outbound client for the form-delivery API.
//
// Context
// -------
// The delivery API (Web3Forms and compatible services) accepts one POST per
// submission carrying an access key plus arbitrary named fields and replies
// with a JSON object holding at least a `success` boolean and an optional
// `message`.  Two wire shapes are supported:
//
//   • json       – application/json object, keys in payload order
//   • multipart  – multipart/form-data, one part per payload entry
//
// Notes
// -----
// • The client sets no timeout of its own.  Deadlines come from the context
//   the handler passes in.
// • The transport is wrapped in otelhttp so the outbound call is a child
//   span of the inbound request.
// • Replies are read through a LimitReader; anything past maxReplyBytes is
//   ignored and will usually break the JSON decode.
//
//------------------------------------------------------------------------------

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yanizio/concierge/internal/form"
)

// Supported request encodings.
const (
	EncodingJSON      = "json"
	EncodingMultipart = "multipart"
)

const maxReplyBytes = 1 << 20

// ErrUpstreamDecode is returned when the delivery API answers with something
// that is not a JSON object.
var ErrUpstreamDecode = errors.New("relay: upstream reply is not a JSON object")

// Reply is the delivery API's answer.
type Reply struct {
	StatusCode int
	Body       map[string]any
}

// Success reports whether the API accepted the submission: a 2xx status and
// `success: true` in the body.
func (r *Reply) Success() bool {
	if r == nil || r.StatusCode < 200 || r.StatusCode > 299 {
		return false
	}
	ok, _ := r.Body["success"].(bool)
	return ok
}

// Message returns the API's `message` field, or "".
func (r *Reply) Message() string {
	if r == nil {
		return ""
	}
	m, _ := r.Body["message"].(string)
	return m
}

// Client posts payloads to one endpoint.
type Client struct {
	endpoint string
	encoding string
	http     *http.Client
}

// NewClient returns a Client for endpoint.  rt may be nil, in which case
// http.DefaultTransport is used.  An unknown encoding falls back to JSON.
func NewClient(endpoint, encoding string, rt http.RoundTripper) *Client {
	if rt == nil {
		rt = http.DefaultTransport
	}
	if encoding != EncodingMultipart {
		encoding = EncodingJSON
	}
	return &Client{
		endpoint: endpoint,
		encoding: encoding,
		http:     &http.Client{Transport: otelhttp.NewTransport(rt)},
	}
}

// Send implements Sender.  Transport failures and undecodable replies are
// returned as errors; an API-level rejection is a Reply with Success false.
func (c *Client) Send(ctx context.Context, p form.Payload) (*Reply, error) {
	body, contentType, err := c.encode(p)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("relay: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay: post: %w", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReplyBytes)).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: status %d: %v", ErrUpstreamDecode, resp.StatusCode, err)
	}
	if decoded == nil {
		return nil, fmt.Errorf("%w: status %d: null body", ErrUpstreamDecode, resp.StatusCode)
	}
	return &Reply{StatusCode: resp.StatusCode, Body: decoded}, nil
}

func (c *Client) encode(p form.Payload) (io.Reader, string, error) {
	if c.encoding == EncodingJSON {
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, "", fmt.Errorf("relay: encode json: %w", err)
		}
		return bytes.NewReader(raw), "application/json", nil
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, e := range p {
		if err := mw.WriteField(e.Key, e.Value); err != nil {
			return nil, "", fmt.Errorf("relay: encode multipart: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("relay: encode multipart: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}
