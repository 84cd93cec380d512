package model

import (
	"database/sql"
	"time"
)

const TableCheckpoint = "checkpoints"

// Id of the only checkpoint row
const CheckpointId = 1

type Checkpoint struct {
	// Id always equals one
	Id int

	// Height of the last fully ingested block
	LastBlock int64

	// Process currently allowed to ingest
	Owner sql.NullString

	// Owner's lease is valid until
	LeaseExpiresAt sql.NullTime

	// Incremented every time the lease changes hands
	LeaseVersion int64

	UpdatedAt time.Time
}

func (Checkpoint) TableName() string {
	return TableCheckpoint
}
