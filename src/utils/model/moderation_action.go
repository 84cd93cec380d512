package model

import (
	"database/sql"
	"time"
)

const TableModerationAction = "moderation_actions"

const (
	ModerationActionHide   = "hide"
	ModerationActionUnhide = "unhide"
)

type ModerationAction struct {
	Id int64 `gorm:"primaryKey"`

	// Moderated message
	TrxId string

	Moderator string
	Action    string
	Reason    sql.NullString
	CreatedAt time.Time

	// Transaction that carried the action, empty for actions taken in the web app
	SourceTrxId sql.NullString
}

func (ModerationAction) TableName() string {
	return TableModerationAction
}
