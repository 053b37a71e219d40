package service

import "context"

// TxRepositories exposes transaction-scoped repositories.
type TxRepositories interface {
	Chunks() ChunkRepositoryInterface
	Relationships() RelationshipRepositoryInterface
	Jobs() JobRepositoryInterface
	Lineage() LineageRepositoryInterface
}

// TxRunner executes a function within a transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}
