package monitor

import (
	"time"

	"go.uber.org/atomic"
)

type State struct {
	StartTimestamp atomic.Int64  `json:"start_timestamp"`
	UpForSeconds   atomic.Uint64 `json:"up_for_seconds"`

	// Current phase of the ingestion loop
	WatcherState atomic.String `json:"watcher_state"`
	HasLease     atomic.Bool   `json:"has_lease"`

	ChainHead               atomic.Int64 `json:"chain_head"`
	CheckpointHeight        atomic.Int64 `json:"checkpoint_height"`
	BlocksBehind            atomic.Int64 `json:"blocks_behind"`
	LastCheckpointTimestamp atomic.Int64 `json:"last_checkpoint_timestamp"`

	Cycles                 atomic.Uint64 `json:"cycles"`
	BlocksProcessed        atomic.Uint64 `json:"blocks_processed"`
	ActionsExtracted       atomic.Uint64 `json:"actions_extracted"`
	OperationsDropped      atomic.Uint64 `json:"operations_dropped"`
	MessagesSaved          atomic.Uint64 `json:"messages_saved"`
	ModerationActionsSaved atomic.Uint64 `json:"moderation_actions_saved"`
	FollowsSaved           atomic.Uint64 `json:"follows_saved"`
	AppreciationsSaved     atomic.Uint64 `json:"appreciations_saved"`
	DuplicatesSkipped      atomic.Uint64 `json:"duplicates_skipped"`
	NotificationsPublished atomic.Uint64 `json:"notifications_published"`
	NotificationsDropped   atomic.Uint64 `json:"notifications_dropped"`
	Recounts               atomic.Uint64 `json:"recounts"`

	AverageBlocksProcessedPerMinute atomic.Float64 `json:"average_blocks_processed_per_minute"`
	AverageMessagesSavedPerMinute   atomic.Float64 `json:"average_messages_saved_per_minute"`
}

type Errors struct {
	HeadFetch      atomic.Uint64 `json:"head_fetch"`
	BlockFetch     atomic.Uint64 `json:"block_fetch"`
	Persist        atomic.Uint64 `json:"persist"`
	NodeFailover   atomic.Uint64 `json:"node_failover"`
	Backoffs       atomic.Uint64 `json:"backoffs"`
	LeaseLost      atomic.Uint64 `json:"lease_lost"`
	Publish        atomic.Uint64 `json:"publish"`
	PublishGivenUp atomic.Uint64 `json:"publish_given_up"`
	Recount        atomic.Uint64 `json:"recount"`
}

type Report struct {
	State  State  `json:"state"`
	Errors Errors `json:"errors"`
}

func (self *Report) Fill() {
	self.State.UpForSeconds.Store(uint64(time.Now().Unix() - self.State.StartTimestamp.Load()))
}
