package model

import (
	"gorm.io/gorm/schema"
)

// Contact maps a phone number to the most recently observed display name.
// Upserted whenever a record carries both; last write wins.
type Contact struct {
	Phone     string `json:"phone" gorm:"column:phone;primaryKey;type:text" validate:"required"`
	Name      string `json:"name" gorm:"column:name;type:text" validate:"required"`
	UpdatedAt int64  `json:"updated_at,omitempty" gorm:"column:updated_at"`
}

// TableName specifies the table name for the Contact model, respecting the Namer.
func (Contact) TableName(namer schema.Namer) string {
	return namer.TableName("contacts")
}

// ContactUpdateColumns lists the columns refreshed when an existing phone is seen again.
func ContactUpdateColumns() []string {
	return []string{"name", "updated_at"}
}
