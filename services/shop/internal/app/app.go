package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"autoservice/internal/util"
	"autoservice/pkg/domain"
	"autoservice/pkg/lock"
	"autoservice/pkg/store"
)

// MemoryDatabaseURL selects the in-process store instead of a SQL database.
const MemoryDatabaseURL = "memory"

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Store       store.Store
	Locker      lock.Locker
	SeedBrands  []string
	Registerer  prometheus.Registerer
}

// App validates and applies task assignments on top of a Store.
// Writes that consume a mechanic's capacity run under that mechanic's lock,
// so the sum read before a decision is still current when the write lands.
type App struct {
	store   store.Store
	locks   lock.Locker
	metrics *metrics
}

// New constructs the application, opening a store from DatabaseURL unless one is injected.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		dsn := strings.TrimSpace(cfg.DatabaseURL)
		switch dsn {
		case "":
			return nil, fmt.Errorf("database URL required")
		case MemoryDatabaseURL:
			dataStore = store.NewMemoryStore()
		default:
			var err error
			dataStore, err = store.NewGormStore(dsn)
			if err != nil {
				return nil, fmt.Errorf("init store: %w", err)
			}
		}
	}
	locker := cfg.Locker
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if len(cfg.SeedBrands) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := dataStore.EnsureBrands(ctx, cfg.SeedBrands); err != nil {
			return nil, fmt.Errorf("seed brands: %w", err)
		}
	}
	return &App{
		store:   dataStore,
		locks:   locker,
		metrics: newMetrics(reg),
	}, nil
}

// TaskInput carries the client-editable task fields.
type TaskInput struct {
	Brand      string `json:"brand"`
	Name       string `json:"name"`
	Complexity *int   `json:"complexity"`
}

func (in TaskInput) validate() error {
	if strings.TrimSpace(in.Brand) == "" {
		return domain.Validation("brand")
	}
	if strings.TrimSpace(in.Name) == "" {
		return domain.Validation("name")
	}
	if in.Complexity == nil {
		return domain.Validation("complexity")
	}
	if *in.Complexity < 0 {
		return domain.Invalid("complexity", "must be non-negative")
	}
	if *in.Complexity > domain.MaxComplexity {
		return domain.Invalid("complexity", fmt.Sprintf("must not exceed %d", domain.MaxComplexity))
	}
	return nil
}

func requireID(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return domain.Validation(field)
	}
	return nil
}

// CreateTask assigns a new task to a mechanic after the brand and capacity checks pass.
func (a *App) CreateTask(ctx context.Context, mechanicID string, in TaskInput) (domain.Task, error) {
	task, err := a.createTask(ctx, mechanicID, in)
	a.metrics.observe(opCreateTask, err)
	logDecision(ctx, opCreateTask, mechanicID, task.ID, err)
	return task, err
}

func (a *App) createTask(ctx context.Context, mechanicID string, in TaskInput) (domain.Task, error) {
	if err := requireID("mechanicId", mechanicID); err != nil {
		return domain.Task{}, err
	}
	if err := in.validate(); err != nil {
		return domain.Task{}, err
	}
	unlock, err := a.lockMechanic(ctx, mechanicID)
	if err != nil {
		return domain.Task{}, err
	}
	defer unlock()

	if err := a.admit(ctx, mechanicID, in.Brand, *in.Complexity); err != nil {
		return domain.Task{}, err
	}
	task := domain.Task{
		ID:         store.NewID(),
		MechanicID: mechanicID,
		Brand:      in.Brand,
		Name:       in.Name,
		Complexity: *in.Complexity,
	}
	if err := a.store.InsertTask(ctx, task); err != nil {
		return domain.Task{}, domain.StoreFailure(fmt.Errorf("insert task: %w", err))
	}
	return task, nil
}

// ReassignTask moves a task to another mechanic. The task's own brand and
// complexity are checked against the new mechanic, whose sum still excludes
// the task. Only the owner changes; a rejection leaves the task untouched.
func (a *App) ReassignTask(ctx context.Context, taskID, newMechanicID string) (domain.Task, error) {
	task, err := a.reassignTask(ctx, taskID, newMechanicID)
	a.metrics.observe(opReassignTask, err)
	logDecision(ctx, opReassignTask, newMechanicID, taskID, err)
	return task, err
}

func (a *App) reassignTask(ctx context.Context, taskID, newMechanicID string) (domain.Task, error) {
	if err := requireID("taskId", taskID); err != nil {
		return domain.Task{}, err
	}
	if err := requireID("newMechanicId", newMechanicID); err != nil {
		return domain.Task{}, err
	}
	unlock, err := a.lockMechanic(ctx, newMechanicID)
	if err != nil {
		return domain.Task{}, err
	}
	defer unlock()

	task, ok, err := a.store.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, domain.StoreFailure(fmt.Errorf("get task: %w", err))
	}
	if !ok {
		return domain.Task{}, domain.NotFound(domain.EntityTask)
	}
	if err := a.admit(ctx, newMechanicID, task.Brand, task.Complexity); err != nil {
		return domain.Task{}, err
	}
	n, err := a.store.UpdateTaskOwner(ctx, taskID, newMechanicID)
	if err != nil {
		return domain.Task{}, domain.StoreFailure(fmt.Errorf("update task owner: %w", err))
	}
	if n == 0 {
		return domain.Task{}, domain.NotFound(domain.EntityTask)
	}
	task.MechanicID = newMechanicID
	return task, nil
}

// UpdateTask overwrites brand, name, and complexity of a task owned by mechanicID.
// Unlike CreateTask it does not re-run the brand or capacity checks.
func (a *App) UpdateTask(ctx context.Context, taskID, mechanicID string, in TaskInput) (domain.Task, error) {
	if err := requireID("taskId", taskID); err != nil {
		return domain.Task{}, err
	}
	if err := requireID("mechanicId", mechanicID); err != nil {
		return domain.Task{}, err
	}
	if err := in.validate(); err != nil {
		return domain.Task{}, err
	}
	n, err := a.store.UpdateTaskFields(ctx, taskID, mechanicID, in.Brand, in.Name, *in.Complexity)
	if err != nil {
		return domain.Task{}, domain.StoreFailure(fmt.Errorf("update task: %w", err))
	}
	if n == 0 {
		return domain.Task{}, domain.NotFound(domain.EntityTask)
	}
	return domain.Task{
		ID:         taskID,
		MechanicID: mechanicID,
		Brand:      in.Brand,
		Name:       in.Name,
		Complexity: *in.Complexity,
	}, nil
}

// DeleteTask removes a task owned by mechanicID.
func (a *App) DeleteTask(ctx context.Context, taskID, mechanicID string) error {
	if err := requireID("taskId", taskID); err != nil {
		return err
	}
	if err := requireID("mechanicId", mechanicID); err != nil {
		return err
	}
	n, err := a.store.DeleteTask(ctx, taskID, mechanicID)
	if err != nil {
		return domain.StoreFailure(fmt.Errorf("delete task: %w", err))
	}
	if n == 0 {
		return domain.NotFound(domain.EntityTask)
	}
	return nil
}

// GetTask returns a task by id.
func (a *App) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	if err := requireID("taskId", taskID); err != nil {
		return domain.Task{}, err
	}
	task, ok, err := a.store.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, domain.StoreFailure(fmt.Errorf("get task: %w", err))
	}
	if !ok {
		return domain.Task{}, domain.NotFound(domain.EntityTask)
	}
	return task, nil
}

// ListTasks returns the tasks owned by a mechanic; an unknown mechanic has none.
func (a *App) ListTasks(ctx context.Context, mechanicID string) ([]domain.Task, error) {
	if err := requireID("mechanicId", mechanicID); err != nil {
		return nil, err
	}
	tasks, err := a.store.ListTasksByMechanic(ctx, mechanicID)
	if err != nil {
		return nil, domain.StoreFailure(fmt.Errorf("list tasks: %w", err))
	}
	return tasks, nil
}

// admit runs CanAssign against live data. Callers hold the mechanic's lock.
func (a *App) admit(ctx context.Context, mechanicID, brand string, complexity int) error {
	mech, ok, err := a.store.GetMechanic(ctx, mechanicID)
	if err != nil {
		return domain.StoreFailure(fmt.Errorf("get mechanic: %w", err))
	}
	if !ok {
		return CanAssign(nil, brand, complexity, 0)
	}
	sum, err := a.store.SumTaskComplexity(ctx, mechanicID)
	if err != nil {
		return domain.StoreFailure(fmt.Errorf("sum task complexity: %w", err))
	}
	return CanAssign(&mech, brand, complexity, sum)
}

func (a *App) lockMechanic(ctx context.Context, mechanicID string) (lock.Unlock, error) {
	unlock, err := a.locks.Lock(ctx, "mechanic:"+mechanicID)
	if err != nil {
		return nil, domain.StoreFailure(fmt.Errorf("lock mechanic: %w", err))
	}
	return unlock, nil
}

func logDecision(ctx context.Context, op, mechanicID, taskID string, err error) {
	logger := util.LoggerFromContext(ctx)
	if err == nil {
		logger.Info("assignment admitted", "op", op, "mechanic_id", mechanicID, "task_id", taskID)
		return
	}
	var de *domain.Error
	if errors.As(err, &de) && de.Kind != domain.KindStoreFailure {
		logger.Debug("assignment rejected", "op", op, "mechanic_id", mechanicID, "task_id", taskID, "kind", string(de.Kind), "reason", de.Error())
		return
	}
	logger.Error("assignment failed", "op", op, "mechanic_id", mechanicID, "task_id", taskID, "err", err)
}
