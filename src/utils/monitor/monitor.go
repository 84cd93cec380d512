package monitor

import (
	"math"
	"net/http"
	"time"

	"github.com/hive-micro/watcher/src/utils/config"
	"github.com/hive-micro/watcher/src/utils/task"

	"github.com/gammazero/deque"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Stores and computes monitor counters
type Monitor struct {
	*task.Task

	Report Report

	historySize int

	collector *Collector

	// Processing speed
	BlockHeights  *deque.Deque[int64]
	MessagesSaved *deque.Deque[uint64]
}

func NewMonitor(config *config.Config) (self *Monitor) {
	self = new(Monitor)

	// Initialization
	self.Report.State.StartTimestamp.Store(time.Now().Unix())
	self.Report.State.WatcherState.Store("idle")

	self.collector = NewCollector().WithMonitor(self)

	self.Task = task.NewTask(config, "monitor").
		WithPeriodicSubtaskFunc(time.Minute, self.monitorBlocks).
		WithPeriodicSubtaskFunc(time.Minute, self.monitorMessages)

	return self.WithMaxHistorySize(30)
}

func (self *Monitor) WithMaxHistorySize(maxHistorySize int) *Monitor {
	self.historySize = maxHistorySize

	self.BlockHeights = deque.New[int64](self.historySize)
	self.MessagesSaved = deque.New[uint64](self.historySize)

	return self
}

func (self *Monitor) GetReport() *Report {
	return &self.Report
}

func (self *Monitor) GetPrometheusCollector() (collector prometheus.Collector) {
	return self.collector
}

func round(f float64) float64 {
	return math.Round(f*100) / 100
}

// Measure block processing speed
func (self *Monitor) monitorBlocks() (err error) {
	loaded := self.Report.State.CheckpointHeight.Load()
	if loaded == 0 {
		// Neglect the first 0
		return
	}

	self.BlockHeights.PushBack(loaded)
	if self.BlockHeights.Len() > self.historySize {
		self.BlockHeights.PopFront()
	}
	value := float64(self.BlockHeights.Back()-self.BlockHeights.Front()) / float64(self.BlockHeights.Len())

	self.Report.State.AverageBlocksProcessedPerMinute.Store(round(value))
	return
}

// Measure message saving speed
func (self *Monitor) monitorMessages() (err error) {
	loaded := self.Report.State.MessagesSaved.Load()
	if loaded == 0 {
		return
	}

	self.MessagesSaved.PushBack(loaded)
	if self.MessagesSaved.Len() > self.historySize {
		self.MessagesSaved.PopFront()
	}
	value := float64(self.MessagesSaved.Back()-self.MessagesSaved.Front()) / float64(self.MessagesSaved.Len())
	self.Report.State.AverageMessagesSavedPerMinute.Store(round(value))
	return
}

// Watcher is fine if it isn't behind or the checkpoint moved recently
func (self *Monitor) IsOK() bool {
	now := time.Now()
	stallTimeout := self.Config.Watcher.StallTimeout

	if now.Sub(time.Unix(self.Report.State.StartTimestamp.Load(), 0)) < stallTimeout {
		// Starting up
		return true
	}

	if !self.Report.State.HasLease.Load() {
		// Standby instance
		return true
	}

	if self.Report.State.BlocksBehind.Load() <= 0 {
		return true
	}

	last := time.Unix(self.Report.State.LastCheckpointTimestamp.Load(), 0)
	return now.Sub(last) < stallTimeout
}

func (self *Monitor) OnGetState(c *gin.Context) {
	self.Report.Fill()
	c.JSON(http.StatusOK, &self.Report)
}

func (self *Monitor) OnGetHealth(c *gin.Context) {
	status := http.StatusOK
	if !self.IsOK() {
		status = http.StatusServiceUnavailable
	}
	self.Report.Fill()
	c.JSON(status, &self.Report)
}
