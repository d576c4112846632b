package db

import "context"

// TxFunc runs inside a storage transaction. The context it receives carries
// the transaction and must be passed to every repository call in the unit.
type TxFunc func(ctx context.Context) error

type TransactionManager interface {
	ExecuteTransaction(ctx context.Context, fn TxFunc) error
}
