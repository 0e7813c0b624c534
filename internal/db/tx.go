package db

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

// TxRunner runs fn as one atomic unit of work.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// MongoTxRunner runs units of work in a MongoDB session transaction.
// With Enabled false fn runs directly and only the per-document
// compare-and-swap updates protect the data.
type MongoTxRunner struct {
	Client  *mongo.Client
	Enabled bool
}

// WithTransaction implements TxRunner.
func (r *MongoTxRunner) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.Client == nil || !r.Enabled {
		return fn(ctx)
	}

	session, err := r.Client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}
