package models

import (
	"time"

	"gorm.io/gorm"
)

type Course struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Name      string `gorm:"size:100;not null;index" validate:"required,max=100"`
	TeacherID uint   `gorm:"not null;index" validate:"required"`
	Teacher   User   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" validate:"-"`
	Time      string `gorm:"size:50;not null" validate:"required,max=50"` // free text, e.g. "MWF 10:00-10:50 AM"
	Capacity  int    `gorm:"not null" validate:"gt=0"`
}

func (c *Course) Validate() error {
	return check(c)
}

func (c *Course) BeforeSave(*gorm.DB) error {
	return c.Validate()
}
