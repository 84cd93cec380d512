package watcher

import (
	"time"
)

type ActionKind string

const (
	ActionKindPost       ActionKind = "post"
	ActionKindModeration ActionKind = "moderation"
	ActionKindFollow     ActionKind = "follow"
	ActionKindHeart      ActionKind = "heart"
)

// Application operation decoded from a custom_json payload
type Action interface {
	Kind() ActionKind
	Meta() *ActionMeta
}

// Data common to all actions, taken from the block and the operation
type ActionMeta struct {
	TrxId     string    `json:"trx_id"`
	BlockNum  int64     `json:"block_num"`
	Timestamp time.Time `json:"timestamp"`

	// Single posting authority that signed the operation
	Author string `json:"author"`

	// custom_json id the operation was sent with
	AppId string `json:"app_id"`

	// Position in the block
	TxIndex int `json:"tx_index"`
	OpIndex int `json:"op_index"`

	RawJson []byte `json:"-"`
}

func (self *ActionMeta) Meta() *ActionMeta {
	return self
}

type PostAction struct {
	ActionMeta

	// Payload type, post or reply
	Type     string   `json:"type"`
	Content  string   `json:"content"`
	Mentions []string `json:"mentions"`
	Tags     []string `json:"tags"`

	// Parent message, empty for top level posts
	ReplyTo string `json:"reply_to,omitempty"`
}

func (*PostAction) Kind() ActionKind {
	return ActionKindPost
}

type ModerationAction struct {
	ActionMeta

	// hide or unhide
	Action      string `json:"action"`
	TargetTrxId string `json:"target_trx_id"`
	Reason      string `json:"reason,omitempty"`
}

func (*ModerationAction) Kind() ActionKind {
	return ActionKindModeration
}

type FollowAction struct {
	ActionMeta

	Following string `json:"following"`
	Unfollow  bool   `json:"unfollow"`
}

func (*FollowAction) Kind() ActionKind {
	return ActionKindFollow
}

type HeartAction struct {
	ActionMeta

	TargetTrxId string `json:"target_trx_id"`
}

func (*HeartAction) Kind() ActionKind {
	return ActionKindHeart
}
