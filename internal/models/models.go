package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"            json:"id"`
	Username     string     `gorm:"size:50;uniqueIndex;not null"    json:"username"`
	Email        string     `gorm:"size:255;uniqueIndex;not null"   json:"email"`
	PasswordHash string     `gorm:"not null"                        json:"-"`
	FirstName    string     `gorm:"size:50"                         json:"first_name"`
	LastName     string     `gorm:"size:50"                         json:"last_name"`
	IsActive     bool       `gorm:"not null;default:true"           json:"is_active"`
	IsVerified   bool       `gorm:"not null;default:false"          json:"is_verified"`
	CreatedAt    time.Time  `gorm:"not null"                        json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null"                        json:"updated_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

type Calculation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"              json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null"          json:"user_id"`
	Type      string    `gorm:"size:32;index;not null"            json:"type"`
	Inputs    Inputs    `gorm:"type:text;not null"                json:"inputs"`
	Result    float64   `gorm:"not null"                          json:"result"`
	CreatedAt time.Time `gorm:"not null"                          json:"created_at"`
	UpdatedAt time.Time `gorm:"not null"                          json:"updated_at"`
}

type RevokedToken struct {
	JTI       string    `gorm:"primaryKey;size:64"   json:"jti"`
	ExpiresAt time.Time `gorm:"index;not null"       json:"expires_at"`
}

// All lists every table owned by the service, in migration order.
func All() []any {
	return []any{&User{}, &Calculation{}, &RevokedToken{}}
}

// Inputs is stored as a JSON array so the order of operands survives.
type Inputs []float64

func (in Inputs) Value() (driver.Value, error) {
	if in == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]float64(in))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (in *Inputs) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*in = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("inputs: unsupported column type %T", src)
	}
	var out []float64
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("inputs: %w", err)
	}
	*in = out
	return nil
}
