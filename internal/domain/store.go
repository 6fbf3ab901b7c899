package domain

import "context"

// Store groups the repositories that must change together.
// WithinTx hands fn a Store bound to a single transaction; returning an error rolls it back.
type Store interface {
	Contracts() ContractRepository
	Obligations() ObligationRepository
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
