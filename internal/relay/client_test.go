package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/concierge/internal/form"
)

var samplePayload = form.Payload{
	{Key: form.KeyAccessKey, Value: "secret"},
	{Key: form.KeySubject, Value: "Quick Inquiry from Jane Doe"},
	{Key: "Name", Value: "Jane Doe"},
}

func TestClient_JSON(t *testing.T) {
	var gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "sent"})
	}))
	defer srv.Close()

	reply, err := NewClient(srv.URL, EncodingJSON, nil).Send(context.Background(), samplePayload)
	require.NoError(t, err)
	assert.True(t, reply.Success())
	assert.Equal(t, "sent", reply.Message())
	assert.Equal(t, "application/json", gotType)
	assert.JSONEq(t, `{"access_key":"secret","subject":"Quick Inquiry from Jane Doe","Name":"Jane Doe"}`, string(gotBody))
	assert.Equal(t, `{"access_key":"secret",`, string(gotBody[:23]))
}

func TestClient_Multipart(t *testing.T) {
	got := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for k, v := range r.MultipartForm.Value {
			got[k] = v[0]
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	reply, err := NewClient(srv.URL, EncodingMultipart, nil).Send(context.Background(), samplePayload)
	require.NoError(t, err)
	assert.True(t, reply.Success())
	assert.Equal(t, "secret", got["access_key"])
	assert.Equal(t, "Jane Doe", got["Name"])
}

func TestClient_RejectionIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"message":"Invalid access key"}`))
	}))
	defer srv.Close()

	reply, err := NewClient(srv.URL, EncodingJSON, nil).Send(context.Background(), samplePayload)
	require.NoError(t, err)
	assert.False(t, reply.Success())
	assert.Equal(t, http.StatusBadRequest, reply.StatusCode)
	assert.Equal(t, "Invalid access key", reply.Message())
}

func TestClient_NonJSONReply(t *testing.T) {
	for _, body := range []string{"<html>Bad Gateway</html>", "null", ""} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(body))
		}))
		_, err := NewClient(srv.URL, EncodingJSON, nil).Send(context.Background(), samplePayload)
		srv.Close()
		assert.True(t, errors.Is(err, ErrUpstreamDecode), "body %q: err = %v", body, err)
	}
}

func TestClient_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewClient(srv.URL, EncodingJSON, nil).Send(ctx, samplePayload)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "err = %v", err)
}

func TestReply_Success(t *testing.T) {
	var nilReply *Reply
	assert.False(t, nilReply.Success())
	assert.Equal(t, "", nilReply.Message())
	assert.False(t, (&Reply{StatusCode: 200, Body: map[string]any{"success": "true"}}).Success())
	assert.True(t, (&Reply{StatusCode: 201, Body: map[string]any{"success": true}}).Success())
}

func TestStaticKey(t *testing.T) {
	_, err := StaticKey("").AccessKey(context.Background())
	assert.ErrorIs(t, err, ErrMissingAccessKey)
	k, err := StaticKey("abc").AccessKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", k)
}
