package vault

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// KV is the subset of *Client a Source reads through.
type KV interface {
	GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error)
}

// Source re-reads one secret with a TTL, so a rotated access key is picked
// up without a restart.  Concurrent cache misses share one Vault call.
type Source struct {
	kv        KV
	path, key string
	ttl       time.Duration
	group     singleflight.Group
}

// NewSource builds a Source for a "vault:<path>#<key>" reference.
func NewSource(kv KV, ref string, ttl time.Duration) (*Source, error) {
	path, key, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}
	return &Source{kv: kv, path: path, key: key, ttl: ttl}, nil
}

// AccessKey returns the current secret value.
func (s *Source) AccessKey(ctx context.Context) (string, error) {
	v, err, _ := s.group.Do(s.path+"#"+s.key, func() (any, error) {
		return s.kv.GetKV(ctx, s.path, s.key, s.ttl)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
