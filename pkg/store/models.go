package store

import "autoservice/pkg/domain"

// GORM models used for persistence. Table and column names match the
// schema the shop has always used, so existing databases open unchanged.
type BrandModel struct {
	ID   int64  `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"uniqueIndex"`
}

func (BrandModel) TableName() string { return "brands" }

type MechanicModel struct {
	ID            string `gorm:"primaryKey"`
	Name          string `gorm:"not null"`
	Brands        string `gorm:"not null"`
	MaxComplexity int    `gorm:"column:max_complexity;not null"`
}

func (MechanicModel) TableName() string { return "mechanics" }

type TaskModel struct {
	ID         string `gorm:"primaryKey"`
	MechanicID string `gorm:"not null;index"`
	Brand      string `gorm:"not null"`
	Name       string `gorm:"not null"`
	Complexity int    `gorm:"not null"`
}

func (TaskModel) TableName() string { return "tasks" }

func brandFromModel(m BrandModel) domain.Brand {
	return domain.Brand{ID: m.ID, Name: m.Name}
}

func mechanicToModel(m domain.Mechanic) MechanicModel {
	return MechanicModel{
		ID:            m.ID,
		Name:          m.Name,
		Brands:        m.Brands.Join(),
		MaxComplexity: m.Capacity,
	}
}

func mechanicFromModel(m MechanicModel) domain.Mechanic {
	return domain.Mechanic{
		ID:       m.ID,
		Name:     m.Name,
		Brands:   domain.ParseBrandSet(m.Brands),
		Capacity: m.MaxComplexity,
	}
}

func taskToModel(t domain.Task) TaskModel {
	return TaskModel{
		ID:         t.ID,
		MechanicID: t.MechanicID,
		Brand:      t.Brand,
		Name:       t.Name,
		Complexity: t.Complexity,
	}
}

func taskFromModel(m TaskModel) domain.Task {
	return domain.Task{
		ID:         m.ID,
		MechanicID: m.MechanicID,
		Brand:      m.Brand,
		Name:       m.Name,
		Complexity: m.Complexity,
	}
}
