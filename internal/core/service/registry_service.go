package service

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/egms/storeledger/internal/core/domain"
	"github.com/egms/storeledger/internal/port"
)

// WorkerRegistry manages the identities eligible to receive custody.
// Unlike items, workers never merge on a name collision: a duplicate name is
// rejected so custody records can never be attributed to the wrong person.
type WorkerRegistry struct {
	db     port.DatabaseRepository
	logger *zap.Logger
}

func NewWorkerRegistry(db port.DatabaseRepository, logger *zap.Logger) *WorkerRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerRegistry{db: db, logger: logger}
}

func (r *WorkerRegistry) Register(ctx context.Context, name, plan string) (domain.Worker, error) {
	w := domain.Worker{
		ID:        uuid.NewString(),
		Name:      name,
		Plan:      plan,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.db.CreateWorker(ctx, w); err != nil {
		return domain.Worker{}, err
	}
	r.logger.Info("worker registered", zap.String("worker", name))
	return w, nil
}

func (r *WorkerRegistry) Get(ctx context.Context, name string) (domain.Worker, error) {
	return r.db.GetWorker(ctx, name)
}

// Workers yields every registered worker in name order.
func (r *WorkerRegistry) Workers(ctx context.Context) (iter.Seq[domain.Worker], error) {
	workers, err := r.db.ListWorkers(ctx)
	if err != nil {
		return nil, err
	}
	return func(yield func(domain.Worker) bool) {
		for _, w := range workers {
			if !yield(w) {
				return
			}
		}
	}, nil
}
