package validation

import "github.com/rendis/autoforge/internal/store"

// Validator checks chain definitions before they are persisted.
type Validator interface {
	ValidateChain(chain *store.Chain) error
}
