package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// JSON field type for GORM
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if j.IsNull() {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = append((*j)[0:0], v...)
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

func (j JSON) IsNull() bool {
	return len(j) == 0 || string(j) == "null"
}

// MarshalJSONColumn encodes v for storage in a JSON column.
func MarshalJSONColumn(v any) (JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return JSON(b), nil
}

// Customer model. CreatedAt is the account creation timestamp.
type Customer struct {
	BaseModel
	Name  string `json:"name" gorm:"size:200;not null"`
	Email string `json:"email" gorm:"size:255;uniqueIndex"`
	Phone string `json:"phone" gorm:"size:20"`

	Packages []Package `json:"packages,omitempty" gorm:"foreignKey:CustomerID"`
}

// Notification model for in-app messages created from engine events
type Notification struct {
	BaseModel
	UserID    uint       `json:"user_id" gorm:"not null;index"`
	UserKind  string     `json:"user_kind" gorm:"size:20;not null;type:enum('customer','teacher','admin')"`
	Title     string     `json:"title" gorm:"size:255;not null"`
	Message   string     `json:"message" gorm:"type:text;not null"`
	Type      string     `json:"type" gorm:"size:50;not null;type:enum('info','warning','error','success')"` // info, warning, error, success
	Read      bool       `json:"read" gorm:"default:false"`
	ReadAt    *time.Time `json:"read_at"`
	Data      JSON       `json:"data" gorm:"type:json"`
}
