package store

import (
	"context"
	"sort"
	"sync"

	"autoservice/pkg/domain"
)

// MemoryStore keeps shop data in-process. It backs tests and the `memory` database URL.
type MemoryStore struct {
	mu        sync.RWMutex
	brands    []domain.Brand
	brandIDs  map[string]int64 // name -> id
	nextBrand int64
	mechanics map[string]domain.Mechanic
	tasks     map[string]domain.Task
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		brandIDs:  make(map[string]int64),
		mechanics: make(map[string]domain.Mechanic),
		tasks:     make(map[string]domain.Task),
	}
}

func (m *MemoryStore) InsertBrand(_ context.Context, name string) (domain.Brand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.brandIDs[name]; ok {
		return domain.Brand{}, ErrDuplicate
	}
	return m.insertBrandLocked(name), nil
}

func (m *MemoryStore) insertBrandLocked(name string) domain.Brand {
	m.nextBrand++
	b := domain.Brand{ID: m.nextBrand, Name: name}
	m.brands = append(m.brands, b)
	m.brandIDs[name] = b.ID
	return b
}

func (m *MemoryStore) EnsureBrands(_ context.Context, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range names {
		if _, ok := m.brandIDs[name]; !ok {
			m.insertBrandLocked(name)
		}
	}
	return nil
}

func (m *MemoryStore) ListBrands(_ context.Context) ([]domain.Brand, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Brand(nil), m.brands...), nil
}

func (m *MemoryStore) InsertMechanic(_ context.Context, mech domain.Mechanic) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mechanics[mech.ID]; ok {
		return ErrDuplicate
	}
	m.mechanics[mech.ID] = copyMechanic(mech)
	return nil
}

func (m *MemoryStore) GetMechanic(_ context.Context, id string) (domain.Mechanic, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mech, ok := m.mechanics[id]
	if !ok {
		return domain.Mechanic{}, false, nil
	}
	return copyMechanic(mech), true, nil
}

// ListMechanics returns mechanics ordered by name, matching GormStore.
func (m *MemoryStore) ListMechanics(_ context.Context) ([]domain.Mechanic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Mechanic, 0, len(m.mechanics))
	for _, mech := range m.mechanics {
		res = append(res, copyMechanic(mech))
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Name != res[j].Name {
			return res[i].Name < res[j].Name
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (m *MemoryStore) UpdateMechanic(_ context.Context, mech domain.Mechanic) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mechanics[mech.ID]; !ok {
		return 0, nil
	}
	m.mechanics[mech.ID] = copyMechanic(mech)
	return 1, nil
}

func (m *MemoryStore) DeleteMechanic(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mechanics[id]; !ok {
		return 0, nil
	}
	delete(m.mechanics, id)
	return 1, nil
}

func (m *MemoryStore) InsertTask(_ context.Context, t domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; ok {
		return ErrDuplicate
	}
	m.tasks[t.ID] = t
	return nil
}

func (m *MemoryStore) GetTask(_ context.Context, id string) (domain.Task, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	return t, ok, nil
}

// ListTasksByMechanic returns tasks ordered by name, matching GormStore.
func (m *MemoryStore) ListTasksByMechanic(_ context.Context, mechanicID string) ([]domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Task, 0)
	for _, t := range m.tasks {
		if t.MechanicID == mechanicID {
			res = append(res, t)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Name != res[j].Name {
			return res[i].Name < res[j].Name
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (m *MemoryStore) SumTaskComplexity(_ context.Context, mechanicID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, t := range m.tasks {
		if t.MechanicID == mechanicID {
			total += t.Complexity
		}
	}
	return total, nil
}

func (m *MemoryStore) UpdateTaskOwner(_ context.Context, taskID, newMechanicID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return 0, nil
	}
	t.MechanicID = newMechanicID
	m.tasks[taskID] = t
	return 1, nil
}

func (m *MemoryStore) UpdateTaskFields(_ context.Context, taskID, mechanicID, brand, name string, complexity int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok || t.MechanicID != mechanicID {
		return 0, nil
	}
	t.Brand = brand
	t.Name = name
	t.Complexity = complexity
	m.tasks[taskID] = t
	return 1, nil
}

func (m *MemoryStore) DeleteTask(_ context.Context, taskID, mechanicID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok || t.MechanicID != mechanicID {
		return 0, nil
	}
	m.deleteTaskLocked(taskID)
	return 1, nil
}

func (m *MemoryStore) DeleteTasksByMechanic(_ context.Context, mechanicID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tasks {
		if t.MechanicID == mechanicID {
			m.deleteTaskLocked(id)
		}
	}
	return nil
}

func (m *MemoryStore) deleteTaskLocked(id string) {
	delete(m.tasks, id)
}

func copyMechanic(mech domain.Mechanic) domain.Mechanic {
	mech.Brands = append(domain.BrandSet(nil), mech.Brands...)
	return mech
}
