// components/forms/forms.go
//
// Forms Component – the two public submission endpoints.
//
//   • POST /api/submit-form    – contact or intake, chosen by the body's "type"
//   • POST /api/submit-intake  – intake only
//
// Both answer OPTIONS pre-flight with 204 and carry CORS headers on every
// response.  Submissions are rate limited per client IP when a store is
// configured.
package forms

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/concierge/internal/component"
	"github.com/yanizio/concierge/internal/middleware"
)

// Route paths.
const (
	PathSubmitForm   = "/api/submit-form"
	PathSubmitIntake = "/api/submit-intake"
)

// compile-time assertion
var _ component.Component = (*Comp)(nil)

// Comp implements component.Component.
type Comp struct{}

func (c *Comp) Name() string { return "forms" }

func (c *Comp) Mount(r chi.Router, d component.Deps) {
	cors := middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: d.Config.CORS.AllowedOrigins,
		AllowedMethods: d.Config.CORS.AllowedMethods,
		AllowedHeaders: d.Config.CORS.AllowedHeaders,
		MaxAge:         d.Config.CORS.MaxAge,
	})

	mount := func(path string, h http.Handler) {
		r.Route(path, func(sub chi.Router) {
			sub.Use(cors)
			if d.RateStore != nil {
				sub.Use(middleware.RateLimit(d.RateStore, middleware.ClientIPKey, path))
			}
			sub.Post("/", h.ServeHTTP)
			sub.Options("/", preflight)
		})
	}

	mount(PathSubmitForm, d.Relay.Typed())
	mount(PathSubmitIntake, d.Relay.Form("intake"))
}

// preflight is reached only if CORS did not already answer.
func preflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func init() { component.Register(&Comp{}) }
