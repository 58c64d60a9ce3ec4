package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"autoservice/pkg/domain"
	"autoservice/pkg/store"
)

// MechanicInput carries the client-editable mechanic fields.
// A nil MaxComplexity means domain.DefaultCapacity.
type MechanicInput struct {
	Name          string   `json:"name"`
	Brands        []string `json:"brands"`
	MaxComplexity *int     `json:"maxComplexity"`
}

func (in MechanicInput) normalize() (string, domain.BrandSet, int, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return "", nil, 0, domain.Validation("name")
	}
	for _, b := range in.Brands {
		if strings.Contains(b, domain.BrandDelimiter) {
			return "", nil, 0, domain.Invalid("brands", "must not contain '"+domain.BrandDelimiter+"'")
		}
	}
	brands := domain.NewBrandSet(in.Brands...)
	if len(brands) == 0 {
		return "", nil, 0, domain.Validation("brands")
	}
	capacity := domain.DefaultCapacity
	if in.MaxComplexity != nil {
		capacity = *in.MaxComplexity
	}
	if capacity < 0 {
		return "", nil, 0, domain.Invalid("maxComplexity", "must be non-negative")
	}
	if capacity > domain.MaxComplexity {
		return "", nil, 0, domain.Invalid("maxComplexity", fmt.Sprintf("must not exceed %d", domain.MaxComplexity))
	}
	return name, brands, capacity, nil
}

// RegisterMechanic creates a mechanic with a fresh id.
func (a *App) RegisterMechanic(ctx context.Context, in MechanicInput) (domain.Mechanic, error) {
	name, brands, capacity, err := in.normalize()
	if err != nil {
		return domain.Mechanic{}, err
	}
	mech := domain.Mechanic{
		ID:       store.NewID(),
		Name:     name,
		Brands:   brands,
		Capacity: capacity,
	}
	if err := a.store.InsertMechanic(ctx, mech); err != nil {
		return domain.Mechanic{}, domain.StoreFailure(fmt.Errorf("insert mechanic: %w", err))
	}
	return mech, nil
}

// UpdateMechanic replaces name, brands, and capacity. An omitted capacity
// resets to the default. Tasks already assigned are not re-checked, so a
// mechanic may end up owning tasks for dropped brands or above a lowered capacity.
func (a *App) UpdateMechanic(ctx context.Context, id string, in MechanicInput) (domain.Mechanic, error) {
	if err := requireID("mechanicId", id); err != nil {
		return domain.Mechanic{}, err
	}
	name, brands, capacity, err := in.normalize()
	if err != nil {
		return domain.Mechanic{}, err
	}
	unlock, err := a.lockMechanic(ctx, id)
	if err != nil {
		return domain.Mechanic{}, err
	}
	defer unlock()

	mech := domain.Mechanic{ID: id, Name: name, Brands: brands, Capacity: capacity}
	n, err := a.store.UpdateMechanic(ctx, mech)
	if err != nil {
		return domain.Mechanic{}, domain.StoreFailure(fmt.Errorf("update mechanic: %w", err))
	}
	if n == 0 {
		return domain.Mechanic{}, domain.NotFound(domain.EntityMechanic)
	}
	return mech, nil
}

// DeleteMechanic removes a mechanic's tasks and then the mechanic itself.
// For an unknown id the task cleanup is a no-op and NotFound is returned.
func (a *App) DeleteMechanic(ctx context.Context, id string) error {
	if err := requireID("mechanicId", id); err != nil {
		return err
	}
	unlock, err := a.lockMechanic(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if err := a.store.DeleteTasksByMechanic(ctx, id); err != nil {
		return domain.StoreFailure(fmt.Errorf("delete mechanic tasks: %w", err))
	}
	n, err := a.store.DeleteMechanic(ctx, id)
	if err != nil {
		return domain.StoreFailure(fmt.Errorf("delete mechanic: %w", err))
	}
	if n == 0 {
		return domain.NotFound(domain.EntityMechanic)
	}
	a.metrics.mechanicsDeleted.Inc()
	return nil
}

// GetMechanic returns a mechanic by id.
func (a *App) GetMechanic(ctx context.Context, id string) (domain.Mechanic, error) {
	if err := requireID("mechanicId", id); err != nil {
		return domain.Mechanic{}, err
	}
	mech, ok, err := a.store.GetMechanic(ctx, id)
	if err != nil {
		return domain.Mechanic{}, domain.StoreFailure(fmt.Errorf("get mechanic: %w", err))
	}
	if !ok {
		return domain.Mechanic{}, domain.NotFound(domain.EntityMechanic)
	}
	return mech, nil
}

// ListMechanics returns every mechanic.
func (a *App) ListMechanics(ctx context.Context) ([]domain.Mechanic, error) {
	list, err := a.store.ListMechanics(ctx)
	if err != nil {
		return nil, domain.StoreFailure(fmt.Errorf("list mechanics: %w", err))
	}
	return list, nil
}

// Workload reports a mechanic's tasks and how much capacity they consume.
// Remaining is negative when edits pushed the mechanic past capacity.
func (a *App) Workload(ctx context.Context, id string) (domain.Workload, error) {
	mech, err := a.GetMechanic(ctx, id)
	if err != nil {
		return domain.Workload{}, err
	}
	tasks, err := a.ListTasks(ctx, id)
	if err != nil {
		return domain.Workload{}, err
	}
	used := 0
	for _, t := range tasks {
		used += t.Complexity
	}
	return domain.Workload{
		Mechanic:  mech,
		Tasks:     tasks,
		Used:      used,
		Capacity:  mech.Capacity,
		Remaining: mech.Capacity - used,
	}, nil
}

// Close releases the store when it holds external resources.
func (a *App) Close() error {
	if c, ok := a.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
