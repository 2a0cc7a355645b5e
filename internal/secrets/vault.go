package secrets

import (
	"context"

	"github.com/rendis/autoforge/pkg/schema"
)

// Vault resolves ${{secrets.KEY}} references in action configs, such as API
// tokens a chain's HTTP calls need. Values are encrypted at rest.
type Vault interface {
	Resolve(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]string, error)
}

// SecretStore is the persistence the vault writes ciphertext to.
// Satisfied by store.Store.
type SecretStore interface {
	StoreSecret(ctx context.Context, key string, value []byte) error
	GetSecret(ctx context.Context, key string) ([]byte, error)
	DeleteSecret(ctx context.Context, key string) error
	ListSecrets(ctx context.Context) ([]string, error)
}

const scopeSeparator = "/"

// OwnerKey is the vault key holding name for one owner. A chain's
// ${{secrets.NAME}} references resolve only its owner's keys.
func OwnerKey(ownerID, name string) string {
	return ownerID + scopeSeparator + name
}

// ValidName accepts names usable inside ${{secrets.NAME}}.
func ValidName(name string) error {
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "secret key is empty")
	}
	for _, r := range name {
		switch {
		case r == '_', r == '-', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return schema.NewErrorf(schema.ErrCodeValidation,
				"secret key %q may only contain letters, digits, '_' and '-'", name)
		}
	}
	return nil
}
