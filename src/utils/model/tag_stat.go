package model

import "time"

const TableTagStat = "tag_stats"

// Trending tags aggregate
type TagStat struct {
	Tag          string `gorm:"primaryKey"`
	MessageCount int64
	LastSeen     time.Time
}

func (TagStat) TableName() string {
	return TableTagStat
}
