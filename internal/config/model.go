// internal/config/model.go
//
// Typed configuration model for Concierge.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                              – dotenv values,
//   • `conf/global.yaml`                           – primary static file,
//   • `CONCIERGE_`-prefixed environment overrides  – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *before* unmarshalling, so the model never
// stores Vault URIs, only plain strings.  The one exception is recorded in
// `Relay.AccessKeyRef` so the relay can re-read a rotated key.
//
// Validation happens immediately after unmarshal and defaulting; the app
// fails fast if a field is malformed.  A missing access key is *not* a
// startup failure.  The relay answers with a configuration error instead,
// matching how the site behaves when the deploy secret is absent.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Oxford commas, two spaces after periods.  No em-dash.

package config

import "time"

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr      string        `koanf:"listen_addr"      validate:"required,hostname_port"`
	ForceHTTPS      bool          `koanf:"force_https"`
	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout"    validate:"gt=0"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"     validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

//
// Relay section
//

// Relay configures the outbound form-delivery API.
//
// AccessKey is the deployment secret.  When empty after all layers, the
// loader falls back to the WEB3FORMS_ACCESS_KEY variable the site has
// always used.
type Relay struct {
	Endpoint     string        `koanf:"endpoint"       validate:"required,url"`
	AccessKey    string        `koanf:"access_key"`
	AccessKeyRef string        `koanf:"-"` // original vault: reference, if any
	Encoding     string        `koanf:"encoding"       validate:"oneof=json multipart"`
	Timeout      time.Duration `koanf:"timeout"        validate:"gt=0"`
	MaxBodyBytes int64         `koanf:"max_body_bytes" validate:"gt=0"`
	SecretTTL    time.Duration `koanf:"secret_ttl"     validate:"gte=0"`
}

//
// CORS section
//

// CORS lists what browsers may send to the submit endpoints.
type CORS struct {
	AllowedOrigins []string `koanf:"allowed_origins" validate:"min=1"`
	AllowedMethods []string `koanf:"allowed_methods" validate:"min=1"`
	AllowedHeaders []string `koanf:"allowed_headers" validate:"min=1"`
	MaxAge         int      `koanf:"max_age"         validate:"gte=0"`
}

//
// Forms section
//

// Forms points at optional operator overrides for the built-in rule files.
type Forms struct {
	RulesDir string `koanf:"rules_dir"`
}

//
// Rate limit section
//

// RateLimit bounds submissions per client IP.  Requests are allowed per
// Window, refilled evenly, with up to Burst at once.
type RateLimit struct {
	Enabled   bool          `koanf:"enabled"`
	Requests  int           `koanf:"requests"   validate:"gt=0"`
	Window    time.Duration `koanf:"window"     validate:"gt=0"`
	Burst     int           `koanf:"burst"      validate:"gt=0"`
	Backend   string        `koanf:"backend"    validate:"oneof=memory redis"`
	RedisAddr string        `koanf:"redis_addr" validate:"required_if=Backend redis"`
	CacheSize int           `koanf:"cache_size" validate:"gt=0"`
}

//
// Observability sections
//

// Geo enables country lookups in request logs when DBPath is set.
type Geo struct {
	DBPath string `koanf:"db_path"`
}

// Tracing configures the OpenTelemetry exporter.
type Tracing struct {
	Enabled     bool    `koanf:"enabled"`
	ServiceName string  `koanf:"service_name" validate:"required"`
	Endpoint    string  `koanf:"endpoint"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"  validate:"gte=0,lte=1"`
}

// Log configures the file logger.
type Log struct {
	Dir   string `koanf:"dir"`
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.  The loader
// discovers `Root` (repo root or CONCIERGE_ROOT override) so later code
// can build absolute file paths.
type Paths struct {
	Root string
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP      HTTP      `koanf:"http"`
	Relay     Relay     `koanf:"relay"`
	CORS      CORS      `koanf:"cors"`
	Forms     Forms     `koanf:"forms"`
	RateLimit RateLimit `koanf:"rate_limit"`
	Geo       Geo       `koanf:"geo"`
	Tracing   Tracing   `koanf:"tracing"`
	Log       Log       `koanf:"log"`
	Paths     Paths     `koanf:"-"` // not loaded from config files
}
