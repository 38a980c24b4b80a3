package vault

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// RefPrefix marks a config value that lives in Vault.
const RefPrefix = "vault:"

// ParseRef splits "vault:<kv path>#<key>" into its path and key.
func ParseRef(ref string) (path, key string, err error) {
	body, ok := strings.CutPrefix(ref, RefPrefix)
	if !ok {
		return "", "", fmt.Errorf("vault ref %q: missing %q prefix", ref, RefPrefix)
	}
	path, key, ok = strings.Cut(body, "#")
	path = strings.Trim(path, "/")
	if !ok || path == "" || key == "" || !strings.Contains(path, "/") {
		return "", "", fmt.Errorf("vault ref %q: want vault:<mount>/<path>#<key>", ref)
	}
	return path, key, nil
}

// Lazy defers dialing Vault until the first reference is resolved, so a
// deployment that never uses `vault:` values never needs VAULT_ADDR.
type Lazy struct {
	ctx context.Context
	log *zap.SugaredLogger

	once sync.Once
	cli  *Client
	err  error
}

// NewLazy returns a resolver bound to ctx, which also bounds the renewal
// loop of the client it eventually creates.
func NewLazy(ctx context.Context, log *zap.SugaredLogger) *Lazy {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Lazy{ctx: ctx, log: log}
}

// Client dials Vault on first use and returns the shared handle.
func (l *Lazy) Client() (*Client, error) {
	l.once.Do(func() {
		l.cli, l.err = New(l.ctx, l.log)
		if l.err == nil {
			l.log.Infow("vault client online")
		}
	})
	return l.cli, l.err
}

// Resolve implements config.SecretResolver.
func (l *Lazy) Resolve(ctx context.Context, ref string) (string, error) {
	cli, err := l.Client()
	if err != nil {
		return "", err
	}
	return cli.Resolve(ctx, ref)
}
