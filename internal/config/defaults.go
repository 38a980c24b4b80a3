// internal/config/defaults.go
//
// Built-in defaults, applied after unmarshal so every layer may leave a
// value unset.  Zero means "not configured" for every field below.

package config

import (
	"path/filepath"
	"time"
)

// DefaultEndpoint is the public form-delivery API.
const DefaultEndpoint = "https://api.web3forms.com/submit"

func applyDefaults(c *Config) {
	h := &c.HTTP
	setString(&h.ListenAddr, ":8080")
	setDuration(&h.ReadTimeout, 10*time.Second)
	setDuration(&h.WriteTimeout, 15*time.Second)
	setDuration(&h.IdleTimeout, 60*time.Second)
	setDuration(&h.ShutdownTimeout, 20*time.Second)

	r := &c.Relay
	setString(&r.Endpoint, DefaultEndpoint)
	setString(&r.Encoding, "json")
	setDuration(&r.Timeout, 10*time.Second)
	if r.MaxBodyBytes == 0 {
		r.MaxBodyBytes = 64 << 10
	}
	setDuration(&r.SecretTTL, 5*time.Minute)

	cr := &c.CORS
	if len(cr.AllowedOrigins) == 0 {
		cr.AllowedOrigins = []string{"*"}
	}
	if len(cr.AllowedMethods) == 0 {
		cr.AllowedMethods = []string{"POST", "OPTIONS"}
	}
	if len(cr.AllowedHeaders) == 0 {
		cr.AllowedHeaders = []string{"Content-Type"}
	}

	rl := &c.RateLimit
	if rl.Requests == 0 {
		rl.Requests = 10
	}
	setDuration(&rl.Window, time.Minute)
	if rl.Burst == 0 {
		rl.Burst = 5
	}
	setString(&rl.Backend, "memory")
	if rl.CacheSize == 0 {
		rl.CacheSize = 10000
	}

	t := &c.Tracing
	setString(&t.ServiceName, "concierge")
	if t.SampleRate == 0 {
		t.SampleRate = 1
	}

	setString(&c.Log.Level, "info")
	setString(&c.Log.Dir, filepath.Join(c.Paths.Root, "logs"))
}

func setString(p *string, def string) {
	if *p == "" {
		*p = def
	}
}

func setDuration(p *time.Duration, def time.Duration) {
	if *p == 0 {
		*p = def
	}
}
