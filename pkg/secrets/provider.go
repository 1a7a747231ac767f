package secrets

import "context"

// Provider fetches a JSON secret as a key-value map.
type Provider interface {
	GetSecret(ctx context.Context, key string) (map[string]string, error)
}
