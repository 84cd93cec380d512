package model

import (
	"time"
)

const TableFollow = "follows"

const (
	FollowActionFollow   = "follow"
	FollowActionUnfollow = "unfollow"
)

type Follow struct {
	Id        int64 `gorm:"primaryKey"`
	TrxId     string
	BlockNum  int64
	Timestamp time.Time
	Follower  string
	Following string
	Action    string
}

func (Follow) TableName() string {
	return TableFollow
}
