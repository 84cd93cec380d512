package watcher

import (
	"encoding/json"
	"time"

	"github.com/hive-micro/watcher/src/utils/model"
)

// Published after a new message got committed
type Notification struct {
	TrxId     string    `json:"trx_id"`
	Author    string    `json:"author"`
	BlockNum  int64     `json:"block_num"`
	Timestamp time.Time `json:"timestamp"`
	ReplyTo   string    `json:"reply_to,omitempty"`
	Mentions  []string  `json:"mentions"`
	Tags      []string  `json:"tags"`
}

func NewNotification(message *model.Message) *Notification {
	return &Notification{
		TrxId:     message.TrxId,
		Author:    message.Author,
		BlockNum:  message.BlockNum,
		Timestamp: message.Timestamp,
		ReplyTo:   message.ReplyTo.String,
		Mentions:  message.Mentions,
		Tags:      message.Tags,
	}
}

func (self *Notification) MarshalBinary() ([]byte, error) {
	return json.Marshal(self)
}
