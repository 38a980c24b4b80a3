// internal/relay/handler_test.go
//
// Handler life-cycle tests against a fake Sender.
//
// Context
// -------
// Every branch of the status mapping is driven through the public handler:
// honeypot, captcha, required fields, unknown type, bad body, missing key,
// transport failure, upstream rejection, and success.  The fake records
// each call so tests can assert whether delivery happened at all.

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/concierge/internal/form"
	"github.com/yanizio/concierge/internal/metrics"
)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type fakeSender struct {
	mu     sync.Mutex
	calls  []form.Payload
	reply  *Reply
	err    error
	block  bool
	gotDDL bool
}

func (f *fakeSender) Send(ctx context.Context, p form.Payload) (*Reply, error) {
	f.mu.Lock()
	f.calls = append(f.calls, p)
	_, f.gotDDL = ctx.Deadline()
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.reply, f.err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func okSender() *fakeSender {
	return &fakeSender{reply: &Reply{
		StatusCode: http.StatusOK,
		Body:       map[string]any{"success": true, "message": "Email sent successfully!"},
	}}
}

type failingKeys struct{}

func (failingKeys) AccessKey(context.Context) (string, error) {
	return "", errors.New("vault sealed")
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func post(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/submit-form", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), "body: %s", rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	return rr, out
}

const contactOK = `{"type":"contact","name":"Jane Doe","email":"jane@example.com","message":"Hello","h-captcha-response":"tok"}`

const intakeOK = `{
	"firstName":"Jane","lastName":"Doe","email":"jane@example.com",
	"services":["Home Organizing","Yacht Polishing","Downsizing"],
	"h-captcha-response":"tok"
}`

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

func TestTyped_ContactDelivered(t *testing.T) {
	s := okSender()
	h := New(s, StaticKey("secret"), Config{})
	before := testutil.ToFloat64(metrics.SubmissionsTotal.WithLabelValues("contact", metrics.OutcomeSent))

	rr, body := post(t, h.Typed(), contactOK)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Email sent successfully!", body["message"])
	require.Equal(t, 1, s.count())
	assert.True(t, s.gotDDL, "outbound call should carry a deadline")

	p := s.calls[0]
	key, _ := p.Get(form.KeyAccessKey)
	subject, _ := p.Get(form.KeySubject)
	phone, _ := p.Get("Phone")
	assert.Equal(t, "secret", key)
	assert.Equal(t, "Quick Inquiry from Jane Doe", subject)
	assert.Equal(t, "Not provided", phone)

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SubmissionsTotal.WithLabelValues("contact", metrics.OutcomeSent)))
}

func TestTyped_HoneypotSkipsDelivery(t *testing.T) {
	s := okSender()
	h := New(s, StaticKey("secret"), Config{})
	trips := testutil.ToFloat64(metrics.HoneypotTripsTotal.WithLabelValues("contact"))

	// No captcha either: the honeypot is checked first.
	rr, body := post(t, h.Typed(), `{"type":"contact","website":"http://spam.example","name":"x"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]any{"success": true}, body)
	assert.Zero(t, s.count())
	assert.Equal(t, trips+1, testutil.ToFloat64(metrics.HoneypotTripsTotal.WithLabelValues("contact")))
}

func TestTyped_HoneypotWithoutKeyStillSucceeds(t *testing.T) {
	s := okSender()
	h := New(s, StaticKey(""), Config{})
	rr, body := post(t, h.Typed(), `{"type":"intake","website":"x"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["success"])
	assert.Zero(t, s.count())
}

func TestTyped_MissingCaptcha(t *testing.T) {
	s := okSender()
	h := New(s, StaticKey("secret"), Config{})

	rr, body := post(t, h.Typed(), `{"type":"contact","name":"Jane Doe","email":"jane@example.com","message":"Hello"}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, strings.ToLower(body["message"].(string)), "captcha")
	assert.Zero(t, s.count())
}

func TestTyped_RequiredFields(t *testing.T) {
	s := okSender()
	h := New(s, StaticKey("secret"), Config{})

	rr, body := post(t, h.Typed(), `{"type":"contact","name":"","email":"jane@example.com","message":"Hello","h-captcha-response":"tok"}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Name, email, and message are required", body["message"])
	errs, ok := body["errors"].([]any)
	require.True(t, ok, "errors list missing")
	require.Len(t, errs, 1)
	assert.Equal(t, "name", errs[0].(map[string]any)["field"])
	assert.Zero(t, s.count())
}

func TestTyped_InvalidType(t *testing.T) {
	h := New(okSender(), StaticKey("secret"), Config{})
	for _, body := range []string{
		`{"type":"newsletter","h-captcha-response":"tok"}`,
		`{"name":"Jane"}`,
		`{"type":7}`,
	} {
		rr, out := post(t, h.Typed(), body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
		assert.Equal(t, MsgInvalidType, out["message"], body)
	}
}

func TestForm_Intake(t *testing.T) {
	s := okSender()
	h := New(s, StaticKey("secret"), Config{})
	dropped := testutil.ToFloat64(metrics.UnrecognizedValuesTotal.WithLabelValues("intake", "services"))

	rr, _ := post(t, h.Form("intake"), intakeOK)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, s.count())
	services, _ := s.calls[0].Get("Services Requested")
	pref, _ := s.calls[0].Get("Preferred Contact")
	assert.Equal(t, "Home Organizing, Downsizing", services)
	assert.Equal(t, "email", pref)
	assert.Equal(t, dropped+1, testutil.ToFloat64(metrics.UnrecognizedValuesTotal.WithLabelValues("intake", "services")))
}

func TestForm_IntakeNoServices(t *testing.T) {
	s := okSender()
	h := New(s, StaticKey("secret"), Config{})
	rr, body := post(t, h.Form("intake"), `{"firstName":"Jane","lastName":"Doe","email":"jane@example.com","services":["Nope"],"h-captcha-response":"tok"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "At least one service is required.", body["message"])
	assert.Zero(t, s.count())
}

func TestServe_BadBody(t *testing.T) {
	h := New(okSender(), StaticKey("secret"), Config{MaxBodyBytes: 64})
	for name, body := range map[string]string{
		"not json":  `name=Jane`,
		"array":     `[1,2]`,
		"trailing":  `{"type":"contact"} {}`,
		"oversized": `{"type":"contact","message":"` + strings.Repeat("x", 200) + `"}`,
	} {
		rr, out := post(t, h.Typed(), body)
		assert.Equal(t, http.StatusInternalServerError, rr.Code, name)
		assert.Equal(t, MsgServerError, out["message"], name)
	}
}

func TestServe_MissingKey(t *testing.T) {
	for name, keys := range map[string]KeySource{
		"static empty": StaticKey(""),
		"source error": failingKeys{},
	} {
		s := okSender()
		h := New(s, keys, Config{})
		rr, body := post(t, h.Typed(), contactOK)
		assert.Equal(t, http.StatusInternalServerError, rr.Code, name)
		assert.Equal(t, MsgConfigError, body["message"], name)
		assert.Zero(t, s.count(), name)
	}
}

func TestServe_TransportFailure(t *testing.T) {
	s := &fakeSender{err: errors.New("dial tcp: connection refused")}
	h := New(s, StaticKey("secret"), Config{})
	rr, body := post(t, h.Typed(), contactOK)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, MsgServerError, body["message"])
	assert.NotContains(t, rr.Body.String(), "connection refused")
}

func TestServe_Timeout(t *testing.T) {
	s := &fakeSender{block: true}
	h := New(s, StaticKey("secret"), Config{Timeout: 20 * time.Millisecond})

	start := time.Now()
	rr, body := post(t, h.Typed(), contactOK)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, MsgServerError, body["message"])
}

func TestServe_UpstreamRejects(t *testing.T) {
	cases := []struct {
		name  string
		reply *Reply
		msg   string
	}{
		{"success false with message",
			&Reply{StatusCode: 200, Body: map[string]any{"success": false, "message": "Invalid access key"}},
			"Invalid access key"},
		{"error status without message",
			&Reply{StatusCode: 403, Body: map[string]any{"success": false}},
			MsgNotDelivered},
		{"error status claiming success",
			&Reply{StatusCode: 502, Body: map[string]any{"success": true, "message": "ok"}},
			"ok"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := New(&fakeSender{reply: tc.reply}, StaticKey("secret"), Config{})
			rr, body := post(t, h.Typed(), contactOK)
			assert.Equal(t, http.StatusInternalServerError, rr.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tc.msg, body["message"])
		})
	}
}

func TestServe_Panic(t *testing.T) {
	h := New(&fakeSender{}, StaticKey("secret"), Config{})
	// A nil reply with a nil error panics in the mapping step.
	rr, body := post(t, h.Typed(), contactOK)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, MsgServerError, body["message"])
}

func TestResponse_NeverLeaksKey(t *testing.T) {
	h := New(okSender(), StaticKey("super-secret-key"), Config{})
	for _, body := range []string{contactOK, `{"type":"contact"}`, `{"type":"contact","website":"x"}`} {
		rr, _ := post(t, h.Typed(), body)
		assert.NotContains(t, rr.Body.String(), "super-secret-key")
	}
}
