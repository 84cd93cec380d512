package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

const TableMessage = "messages"

const (
	MessageTypePost  = "post"
	MessageTypeReply = "reply"
)

type Message struct {
	Id int64 `gorm:"primaryKey"`

	// Id of the transaction that carried the message, unique
	TrxId string

	BlockNum  int64
	Timestamp time.Time

	// Hive account that signed the operation
	Author string

	Type     string
	Content  string
	Mentions datatypes.JSONSlice[string]
	Tags     datatypes.JSONSlice[string]

	// Transaction id of the parent message
	ReplyTo sql.NullString

	// Number of messages replying to this one, derived
	ReplyCount int64

	// Payload as it was found on chain
	RawJson datatypes.JSON
}

func (Message) TableName() string {
	return TableMessage
}
