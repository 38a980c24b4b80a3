package relay

import (
	"context"
	"errors"

	"github.com/yanizio/concierge/internal/form"
)

// ErrMissingAccessKey means the deployment has no delivery credential.
var ErrMissingAccessKey = errors.New("relay: access key not configured")

// Sender delivers one payload to the form-delivery API.  *Client is the
// production implementation.
type Sender interface {
	Send(ctx context.Context, p form.Payload) (*Reply, error)
}

// KeySource yields the access credential for each submission.
// *vault.Source satisfies it for keys kept in Vault.
type KeySource interface {
	AccessKey(ctx context.Context) (string, error)
}

// StaticKey is a credential fixed at startup.
type StaticKey string

// AccessKey implements KeySource.  An empty key is ErrMissingAccessKey.
func (k StaticKey) AccessKey(context.Context) (string, error) {
	if k == "" {
		return "", ErrMissingAccessKey
	}
	return string(k), nil
}
