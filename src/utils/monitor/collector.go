package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Collector struct {
	monitor *Monitor

	UpForSeconds                    *prometheus.Desc
	ChainHead                       *prometheus.Desc
	CheckpointHeight                *prometheus.Desc
	BlocksBehind                    *prometheus.Desc
	HasLease                        *prometheus.Desc
	Cycles                          *prometheus.Desc
	BlocksProcessed                 *prometheus.Desc
	ActionsExtracted                *prometheus.Desc
	OperationsDropped               *prometheus.Desc
	MessagesSaved                   *prometheus.Desc
	ModerationActionsSaved          *prometheus.Desc
	FollowsSaved                    *prometheus.Desc
	AppreciationsSaved              *prometheus.Desc
	DuplicatesSkipped               *prometheus.Desc
	NotificationsPublished          *prometheus.Desc
	NotificationsDropped            *prometheus.Desc
	AverageBlocksProcessedPerMinute *prometheus.Desc
	AverageMessagesSavedPerMinute   *prometheus.Desc

	// Errors
	HeadFetchErrors      *prometheus.Desc
	BlockFetchErrors     *prometheus.Desc
	PersistErrors        *prometheus.Desc
	NodeFailovers        *prometheus.Desc
	Backoffs             *prometheus.Desc
	LeaseLost            *prometheus.Desc
	PublishErrors        *prometheus.Desc
	PublishGivenUpErrors *prometheus.Desc
	RecountErrors        *prometheus.Desc
}

func NewCollector() *Collector {
	labels := prometheus.Labels{
		"app": "hive-micro-watcher",
	}

	return &Collector{
		UpForSeconds:                    prometheus.NewDesc("up_for_seconds", "", nil, labels),
		ChainHead:                       prometheus.NewDesc("chain_head", "", nil, labels),
		CheckpointHeight:                prometheus.NewDesc("checkpoint_height", "", nil, labels),
		BlocksBehind:                    prometheus.NewDesc("blocks_behind", "", nil, labels),
		HasLease:                        prometheus.NewDesc("has_lease", "", nil, labels),
		Cycles:                          prometheus.NewDesc("cycles", "", nil, labels),
		BlocksProcessed:                 prometheus.NewDesc("blocks_processed", "", nil, labels),
		ActionsExtracted:                prometheus.NewDesc("actions_extracted", "", nil, labels),
		OperationsDropped:               prometheus.NewDesc("operations_dropped", "", nil, labels),
		MessagesSaved:                   prometheus.NewDesc("messages_saved", "", nil, labels),
		ModerationActionsSaved:          prometheus.NewDesc("moderation_actions_saved", "", nil, labels),
		FollowsSaved:                    prometheus.NewDesc("follows_saved", "", nil, labels),
		AppreciationsSaved:              prometheus.NewDesc("appreciations_saved", "", nil, labels),
		DuplicatesSkipped:               prometheus.NewDesc("duplicates_skipped", "", nil, labels),
		NotificationsPublished:          prometheus.NewDesc("notifications_published", "", nil, labels),
		NotificationsDropped:            prometheus.NewDesc("notifications_dropped", "", nil, labels),
		AverageBlocksProcessedPerMinute: prometheus.NewDesc("average_blocks_processed_per_minute", "", nil, labels),
		AverageMessagesSavedPerMinute:   prometheus.NewDesc("average_messages_saved_per_minute", "", nil, labels),

		// Errors
		HeadFetchErrors:      prometheus.NewDesc("error_head_fetch", "", nil, labels),
		BlockFetchErrors:     prometheus.NewDesc("error_block_fetch", "", nil, labels),
		PersistErrors:        prometheus.NewDesc("error_persist", "", nil, labels),
		NodeFailovers:        prometheus.NewDesc("error_node_failover", "", nil, labels),
		Backoffs:             prometheus.NewDesc("error_backoff", "", nil, labels),
		LeaseLost:            prometheus.NewDesc("error_lease_lost", "", nil, labels),
		PublishErrors:        prometheus.NewDesc("error_publish", "", nil, labels),
		PublishGivenUpErrors: prometheus.NewDesc("error_publish_given_up", "", nil, labels),
		RecountErrors:        prometheus.NewDesc("error_recount", "", nil, labels),
	}
}

func (self *Collector) WithMonitor(m *Monitor) *Collector {
	self.monitor = m
	return self
}

func (self *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- self.UpForSeconds
	ch <- self.ChainHead
	ch <- self.CheckpointHeight
	ch <- self.BlocksBehind
	ch <- self.HasLease
	ch <- self.Cycles
	ch <- self.BlocksProcessed
	ch <- self.ActionsExtracted
	ch <- self.OperationsDropped
	ch <- self.MessagesSaved
	ch <- self.ModerationActionsSaved
	ch <- self.FollowsSaved
	ch <- self.AppreciationsSaved
	ch <- self.DuplicatesSkipped
	ch <- self.NotificationsPublished
	ch <- self.NotificationsDropped
	ch <- self.AverageBlocksProcessedPerMinute
	ch <- self.AverageMessagesSavedPerMinute

	// Errors
	ch <- self.HeadFetchErrors
	ch <- self.BlockFetchErrors
	ch <- self.PersistErrors
	ch <- self.NodeFailovers
	ch <- self.Backoffs
	ch <- self.LeaseLost
	ch <- self.PublishErrors
	ch <- self.PublishGivenUpErrors
	ch <- self.RecountErrors
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Collect implements required collect function for all promehteus collectors
func (self *Collector) Collect(ch chan<- prometheus.Metric) {
	self.monitor.Report.Fill()
	state := &self.monitor.Report.State
	errors := &self.monitor.Report.Errors

	ch <- prometheus.MustNewConstMetric(self.UpForSeconds, prometheus.GaugeValue, float64(state.UpForSeconds.Load()))
	ch <- prometheus.MustNewConstMetric(self.ChainHead, prometheus.GaugeValue, float64(state.ChainHead.Load()))
	ch <- prometheus.MustNewConstMetric(self.CheckpointHeight, prometheus.GaugeValue, float64(state.CheckpointHeight.Load()))
	ch <- prometheus.MustNewConstMetric(self.BlocksBehind, prometheus.GaugeValue, float64(state.BlocksBehind.Load()))
	ch <- prometheus.MustNewConstMetric(self.HasLease, prometheus.GaugeValue, boolToFloat(state.HasLease.Load()))
	ch <- prometheus.MustNewConstMetric(self.Cycles, prometheus.CounterValue, float64(state.Cycles.Load()))
	ch <- prometheus.MustNewConstMetric(self.BlocksProcessed, prometheus.CounterValue, float64(state.BlocksProcessed.Load()))
	ch <- prometheus.MustNewConstMetric(self.ActionsExtracted, prometheus.CounterValue, float64(state.ActionsExtracted.Load()))
	ch <- prometheus.MustNewConstMetric(self.OperationsDropped, prometheus.CounterValue, float64(state.OperationsDropped.Load()))
	ch <- prometheus.MustNewConstMetric(self.MessagesSaved, prometheus.CounterValue, float64(state.MessagesSaved.Load()))
	ch <- prometheus.MustNewConstMetric(self.ModerationActionsSaved, prometheus.CounterValue, float64(state.ModerationActionsSaved.Load()))
	ch <- prometheus.MustNewConstMetric(self.FollowsSaved, prometheus.CounterValue, float64(state.FollowsSaved.Load()))
	ch <- prometheus.MustNewConstMetric(self.AppreciationsSaved, prometheus.CounterValue, float64(state.AppreciationsSaved.Load()))
	ch <- prometheus.MustNewConstMetric(self.DuplicatesSkipped, prometheus.CounterValue, float64(state.DuplicatesSkipped.Load()))
	ch <- prometheus.MustNewConstMetric(self.NotificationsPublished, prometheus.CounterValue, float64(state.NotificationsPublished.Load()))
	ch <- prometheus.MustNewConstMetric(self.NotificationsDropped, prometheus.CounterValue, float64(state.NotificationsDropped.Load()))
	ch <- prometheus.MustNewConstMetric(self.AverageBlocksProcessedPerMinute, prometheus.GaugeValue, state.AverageBlocksProcessedPerMinute.Load())
	ch <- prometheus.MustNewConstMetric(self.AverageMessagesSavedPerMinute, prometheus.GaugeValue, state.AverageMessagesSavedPerMinute.Load())

	// Errors
	ch <- prometheus.MustNewConstMetric(self.HeadFetchErrors, prometheus.CounterValue, float64(errors.HeadFetch.Load()))
	ch <- prometheus.MustNewConstMetric(self.BlockFetchErrors, prometheus.CounterValue, float64(errors.BlockFetch.Load()))
	ch <- prometheus.MustNewConstMetric(self.PersistErrors, prometheus.CounterValue, float64(errors.Persist.Load()))
	ch <- prometheus.MustNewConstMetric(self.NodeFailovers, prometheus.CounterValue, float64(errors.NodeFailover.Load()))
	ch <- prometheus.MustNewConstMetric(self.Backoffs, prometheus.CounterValue, float64(errors.Backoffs.Load()))
	ch <- prometheus.MustNewConstMetric(self.LeaseLost, prometheus.CounterValue, float64(errors.LeaseLost.Load()))
	ch <- prometheus.MustNewConstMetric(self.PublishErrors, prometheus.CounterValue, float64(errors.Publish.Load()))
	ch <- prometheus.MustNewConstMetric(self.PublishGivenUpErrors, prometheus.CounterValue, float64(errors.PublishGivenUp.Load()))
	ch <- prometheus.MustNewConstMetric(self.RecountErrors, prometheus.CounterValue, float64(errors.Recount.Load()))
}
