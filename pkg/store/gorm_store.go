package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"autoservice/pkg/domain"
)

// GormStore implements Store using GORM over Postgres or SQLite.
type GormStore struct {
	db *gorm.DB
}

// IsPostgresDSN reports whether dsn addresses a Postgres server rather than a SQLite file.
func IsPostgresDSN(dsn string) bool {
	dsn = strings.TrimSpace(dsn)
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

// NewGormStore opens the DB and runs auto-migrations.
// Postgres DSNs use the pgx driver; anything else is treated as a SQLite path.
func NewGormStore(dsn string) (*GormStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("database dsn required")
	}
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	var dialector gorm.Dialector
	postgresDSN := IsPostgresDSN(dsn)
	if postgresDSN {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if !postgresDSN {
		// SQLite allows a single writer; serialize at the pool instead of surfacing SQLITE_BUSY.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&BrandModel{}, &MechanicModel{}, &TaskModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertBrand registers a brand; an existing name yields ErrDuplicate.
func (s *GormStore) InsertBrand(ctx context.Context, name string) (domain.Brand, error) {
	model := BrandModel{Name: name}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&model)
	if res.Error != nil {
		return domain.Brand{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Brand{}, ErrDuplicate
	}
	return brandFromModel(model), nil
}

// EnsureBrands inserts the given names, ignoring ones already present.
func (s *GormStore) EnsureBrands(ctx context.Context, names []string) error {
	for _, name := range names {
		model := BrandModel{Name: name}
		if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(&model).Error; err != nil {
			return fmt.Errorf("seed brand %q: %w", name, err)
		}
	}
	return nil
}

// ListBrands returns brands ordered by id.
func (s *GormStore) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	var models []BrandModel
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Brand, 0, len(models))
	for _, m := range models {
		res = append(res, brandFromModel(m))
	}
	return res, nil
}

// InsertMechanic stores a new mechanic.
func (s *GormStore) InsertMechanic(ctx context.Context, m domain.Mechanic) error {
	model := mechanicToModel(m)
	return s.db.WithContext(ctx).Create(&model).Error
}

// GetMechanic looks up a mechanic by id.
func (s *GormStore) GetMechanic(ctx context.Context, id string) (domain.Mechanic, bool, error) {
	var model MechanicModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Mechanic{}, false, nil
		}
		return domain.Mechanic{}, false, err
	}
	return mechanicFromModel(model), true, nil
}

// ListMechanics returns all mechanics ordered by name.
func (s *GormStore) ListMechanics(ctx context.Context) ([]domain.Mechanic, error) {
	var models []MechanicModel
	if err := s.db.WithContext(ctx).Order("name ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Mechanic, 0, len(models))
	for _, m := range models {
		res = append(res, mechanicFromModel(m))
	}
	return res, nil
}

// UpdateMechanic overwrites name, brands, and capacity.
func (s *GormStore) UpdateMechanic(ctx context.Context, m domain.Mechanic) (int64, error) {
	res := s.db.WithContext(ctx).Model(&MechanicModel{}).
		Where("id = ?", m.ID).
		Updates(map[string]any{
			"name":           m.Name,
			"brands":         m.Brands.Join(),
			"max_complexity": m.Capacity,
		})
	return res.RowsAffected, res.Error
}

// DeleteMechanic removes the mechanic row only; tasks are the caller's concern.
func (s *GormStore) DeleteMechanic(ctx context.Context, id string) (int64, error) {
	res := s.db.WithContext(ctx).Delete(&MechanicModel{}, "id = ?", id)
	return res.RowsAffected, res.Error
}

// InsertTask stores a new task.
func (s *GormStore) InsertTask(ctx context.Context, t domain.Task) error {
	model := taskToModel(t)
	return s.db.WithContext(ctx).Create(&model).Error
}

// GetTask looks up a task by id.
func (s *GormStore) GetTask(ctx context.Context, id string) (domain.Task, bool, error) {
	var model TaskModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Task{}, false, nil
		}
		return domain.Task{}, false, err
	}
	return taskFromModel(model), true, nil
}

// ListTasksByMechanic returns the tasks owned by a mechanic, ordered by name.
func (s *GormStore) ListTasksByMechanic(ctx context.Context, mechanicID string) ([]domain.Task, error) {
	var models []TaskModel
	if err := s.db.WithContext(ctx).Where("mechanic_id = ?", mechanicID).Order("name ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Task, 0, len(models))
	for _, m := range models {
		res = append(res, taskFromModel(m))
	}
	return res, nil
}

// SumTaskComplexity returns the total complexity owned by a mechanic, zero if none.
func (s *GormStore) SumTaskComplexity(ctx context.Context, mechanicID string) (int, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&TaskModel{}).
		Where("mechanic_id = ?", mechanicID).
		Select("COALESCE(SUM(complexity), 0)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return int(total), nil
}

// UpdateTaskOwner moves a task to another mechanic.
func (s *GormStore) UpdateTaskOwner(ctx context.Context, taskID, newMechanicID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&TaskModel{}).
		Where("id = ?", taskID).
		Update("mechanic_id", newMechanicID)
	return res.RowsAffected, res.Error
}

// UpdateTaskFields edits a task only when it belongs to mechanicID.
func (s *GormStore) UpdateTaskFields(ctx context.Context, taskID, mechanicID, brand, name string, complexity int) (int64, error) {
	res := s.db.WithContext(ctx).Model(&TaskModel{}).
		Where("id = ? AND mechanic_id = ?", taskID, mechanicID).
		Updates(map[string]any{
			"brand":      brand,
			"name":       name,
			"complexity": complexity,
		})
	return res.RowsAffected, res.Error
}

// DeleteTask removes a task only when it belongs to mechanicID.
func (s *GormStore) DeleteTask(ctx context.Context, taskID, mechanicID string) (int64, error) {
	res := s.db.WithContext(ctx).Delete(&TaskModel{}, "id = ? AND mechanic_id = ?", taskID, mechanicID)
	return res.RowsAffected, res.Error
}

// DeleteTasksByMechanic removes every task owned by a mechanic.
func (s *GormStore) DeleteTasksByMechanic(ctx context.Context, mechanicID string) error {
	return s.db.WithContext(ctx).Delete(&TaskModel{}, "mechanic_id = ?", mechanicID).Error
}
