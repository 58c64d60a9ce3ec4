package store

import (
	"context"
	"errors"

	"autoservice/pkg/domain"
)

// ErrDuplicate is returned when a unique key is already taken.
var ErrDuplicate = errors.New("store: duplicate key")

// Store defines persistence operations for brands, mechanics, and tasks.
// Lookups report absence through the bool result rather than an error.
// Mutations scoped by id return the number of rows they changed.
type Store interface {
	// brands
	InsertBrand(ctx context.Context, name string) (domain.Brand, error)
	EnsureBrands(ctx context.Context, names []string) error
	ListBrands(ctx context.Context) ([]domain.Brand, error)

	// mechanics
	InsertMechanic(ctx context.Context, m domain.Mechanic) error
	GetMechanic(ctx context.Context, id string) (domain.Mechanic, bool, error)
	ListMechanics(ctx context.Context) ([]domain.Mechanic, error)
	UpdateMechanic(ctx context.Context, m domain.Mechanic) (int64, error)
	DeleteMechanic(ctx context.Context, id string) (int64, error)

	// tasks
	InsertTask(ctx context.Context, t domain.Task) error
	GetTask(ctx context.Context, id string) (domain.Task, bool, error)
	ListTasksByMechanic(ctx context.Context, mechanicID string) ([]domain.Task, error)
	SumTaskComplexity(ctx context.Context, mechanicID string) (int, error)
	UpdateTaskOwner(ctx context.Context, taskID, newMechanicID string) (int64, error)
	UpdateTaskFields(ctx context.Context, taskID, mechanicID, brand, name string, complexity int) (int64, error)
	DeleteTask(ctx context.Context, taskID, mechanicID string) (int64, error)
	DeleteTasksByMechanic(ctx context.Context, mechanicID string) error
}
