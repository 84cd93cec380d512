package model

import (
	"database/sql"
	"time"
)

const TableAppreciation = "appreciations"

// A heart given to a message
type Appreciation struct {
	Id int64 `gorm:"primaryKey"`

	// Appreciated message
	TrxId string

	Username  string
	CreatedAt time.Time

	// Transaction that carried the heart, empty for hearts given in the web app
	SourceTrxId sql.NullString
}

func (Appreciation) TableName() string {
	return TableAppreciation
}
