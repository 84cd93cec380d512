package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hive-micro/watcher/src/utils/config"
	"github.com/hive-micro/watcher/src/utils/hive"
	"github.com/hive-micro/watcher/src/utils/monitor"
	"github.com/hive-micro/watcher/src/utils/task"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/gorm"
)

// Ingestion loop states
const (
	StateIdle       = "idle"
	StateStandby    = "standby"
	StateFetching   = "fetching"
	StateExtracting = "extracting"
	StatePersisting = "persisting"
	StateBackoff    = "backoff"
)

// One watcher per process
var running atomic.Bool

type ChainClient interface {
	CurrentHead(ctx context.Context) (int64, error)
	FetchBlocks(ctx context.Context, from, to int64) ([]*hive.Block, error)
}

// Polls the chain and ingests application operations block by block
type Watcher struct {
	*task.Task

	client      ChainClient
	extractor   *Extractor
	checkpoints *CheckpointStore
	gateway     *Gateway
	monitor     *monitor.Monitor

	// New messages, nil when nobody listens
	Output chan *Notification

	backoff *backoff.ExponentialBackOff

	initialized    bool
	hasLease       atomic.Bool
	leaseRenewedAt time.Time
}

func NewWatcher(config *config.Config) (self *Watcher) {
	self = new(Watcher)

	self.extractor = NewExtractor(config)
	self.monitor = monitor.NewMonitor(config)

	self.backoff = backoff.NewExponentialBackOff()
	self.backoff.InitialInterval = config.Watcher.BackoffInitialInterval
	self.backoff.MaxInterval = config.Watcher.BackoffMaxInterval
	self.backoff.Multiplier = 2
	self.backoff.RandomizationFactor = 0
	self.backoff.MaxElapsedTime = 0
	self.backoff.Reset()

	self.Task = task.NewTask(config, "watcher").
		WithSubtaskFunc(self.run).
		WithCronSubtaskFunc(config.Watcher.RecountSchedule, self.recount).
		WithOnBeforeStart(self.acquireGuard).
		WithOnAfterStop(self.releaseLease)

	return
}

func (self *Watcher) WithClient(client ChainClient) *Watcher {
	self.client = client
	return self
}

func (self *Watcher) WithDB(db *gorm.DB) *Watcher {
	self.checkpoints = NewCheckpointStore(self.Config, db)
	self.gateway = NewGateway(self.Config, db, self.checkpoints)
	return self
}

func (self *Watcher) WithMonitor(monitor *monitor.Monitor) *Watcher {
	self.monitor = monitor
	return self
}

// Enables new message notifications
func (self *Watcher) WithNotifications() *Watcher {
	self.Output = make(chan *Notification, self.Config.Watcher.NotificationBufferSize)
	return self
}

func (self *Watcher) acquireGuard() error {
	if self.client == nil || self.checkpoints == nil {
		return errors.New("watcher needs a chain client and a database")
	}
	if !running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	return nil
}

func (self *Watcher) releaseLease() {
	defer running.Store(false)

	if !self.hasLease.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), self.Config.StopTimeout)
	defer cancel()

	err := self.checkpoints.ReleaseLease(ctx)
	if err != nil {
		self.Log.WithError(err).Error("Failed to release lease")
		return
	}
	self.hasLease.Store(false)
	self.monitor.GetReport().State.HasLease.Store(false)
	self.Log.Info("Lease released")
}

func (self *Watcher) setState(state string) {
	self.monitor.GetReport().State.WatcherState.Store(state)
}

func (self *Watcher) run() error {
	for {
		if self.IsStopping.Load() {
			return nil
		}

		delay := self.cycle()
		if delay > 0 && !self.Sleep(delay) {
			return nil
		}
	}
}

// One pass of the loop. Returns how long to wait before the next one.
func (self *Watcher) cycle() time.Duration {
	report := self.monitor.GetReport()
	report.State.Cycles.Inc()

	err := self.ensureCheckpoint(self.Ctx)
	if err != nil {
		return self.fail(err, "Failed to initialize checkpoint")
	}

	ok, err := self.ensureLease(self.Ctx)
	if err != nil {
		return self.fail(err, "Failed to acquire lease")
	}
	if !ok {
		self.setState(StateStandby)
		return self.Config.Watcher.PollInterval
	}

	self.setState(StateFetching)

	checkpoint, err := self.checkpoints.Read(self.Ctx)
	if err != nil {
		return self.fail(err, "Failed to read checkpoint")
	}
	report.State.CheckpointHeight.Store(checkpoint)

	head, err := self.client.CurrentHead(self.Ctx)
	if err != nil {
		report.Errors.HeadFetch.Inc()
		return self.fail(err, "Failed to get chain head")
	}
	report.State.ChainHead.Store(head)
	report.State.BlocksBehind.Store(max(head-checkpoint, 0))

	target := min(head, checkpoint+self.Config.Watcher.MaxBatchSize)
	if target <= checkpoint {
		// Up to date
		self.backoff.Reset()
		self.setState(StateIdle)
		return self.Config.Watcher.PollInterval
	}

	batch := &Batch{
		Checkpoint: checkpoint,
		From:       checkpoint + 1,
		To:         target,
	}

	blocks, err := self.client.FetchBlocks(self.Ctx, batch.From, batch.To)
	if err == nil {
		err = verifyRange(blocks, batch.From, batch.To)
	}
	if err != nil {
		report.Errors.BlockFetch.Inc()
		return self.fail(err, "Failed to fetch blocks")
	}

	self.setState(StateExtracting)
	dropped := 0
	for _, block := range blocks {
		actions, n := self.extractor.Extract(block)
		batch.Actions = append(batch.Actions, actions...)
		dropped += n
	}
	report.State.OperationsDropped.Add(uint64(dropped))

	self.setState(StatePersisting)

	// Commit isn't interrupted by shutdown, it has its own timeout
	result, err := self.gateway.Commit(context.Background(), batch)
	if err != nil {
		report.Errors.Persist.Inc()
		return self.fail(err, "Failed to persist batch")
	}

	self.backoff.Reset()
	self.leaseRenewedAt = time.Now()

	report.State.CheckpointHeight.Store(target)
	report.State.BlocksBehind.Store(head - target)
	report.State.LastCheckpointTimestamp.Store(time.Now().Unix())
	report.State.BlocksProcessed.Add(uint64(len(blocks)))
	report.State.ActionsExtracted.Add(uint64(len(batch.Actions)))
	report.State.MessagesSaved.Add(uint64(len(result.Messages)))
	report.State.ModerationActionsSaved.Add(uint64(result.ModerationActions))
	report.State.FollowsSaved.Add(uint64(result.Follows))
	report.State.AppreciationsSaved.Add(uint64(result.Appreciations))
	report.State.DuplicatesSkipped.Add(uint64(result.Duplicates))

	self.Log.WithField("from", batch.From).
		WithField("to", batch.To).
		WithField("actions", len(batch.Actions)).
		WithField("messages", len(result.Messages)).
		WithField("duplicates", result.Duplicates).
		WithField("dropped", dropped).
		Debug("Batch committed")

	self.notify(result)

	self.setState(StateIdle)
	if target < head {
		// Catching up
		return 0
	}
	return self.Config.Watcher.PollInterval
}

// Logs the error and schedules a retry after the backoff delay
func (self *Watcher) fail(err error, msg string) time.Duration {
	if self.IsStopping.Load() && errors.Is(err, context.Canceled) {
		return 0
	}

	if errors.Is(err, ErrCheckpointMoved) {
		self.hasLease.Store(false)
		self.monitor.GetReport().State.HasLease.Store(false)
		self.monitor.GetReport().Errors.LeaseLost.Inc()
	}

	delay := self.backoff.NextBackOff()
	if delay == backoff.Stop {
		delay = self.Config.Watcher.BackoffMaxInterval
	}

	self.monitor.GetReport().Errors.Backoffs.Inc()
	self.setState(StateBackoff)
	self.Log.WithError(err).WithField("delay", delay).Error(msg)
	return delay
}

// Creates the checkpoint on the very first run
func (self *Watcher) ensureCheckpoint(ctx context.Context) (err error) {
	if self.initialized {
		return nil
	}

	exists, err := self.checkpoints.Exists(ctx)
	if err != nil {
		return
	}

	if !exists {
		start := self.Config.Watcher.StartBlock
		if start == 0 {
			var head int64
			head, err = self.client.CurrentHead(ctx)
			if err != nil {
				return fmt.Errorf("failed to get start height: %w", err)
			}
			start = max(head-self.Config.Watcher.StartBlocksBehindHead, 0)
		}

		err = self.checkpoints.Init(ctx, start)
		if err != nil {
			return
		}
	}

	self.initialized = true
	return nil
}

// Acquires or renews the lease. Checkpoint writes renew it as well.
func (self *Watcher) ensureLease(ctx context.Context) (bool, error) {
	if self.hasLease.Load() && time.Since(self.leaseRenewedAt) < self.Config.Watcher.LeaseTTL/3 {
		return true, nil
	}

	acquired, err := self.checkpoints.AcquireLease(ctx)
	if err != nil {
		return false, err
	}

	if self.hasLease.Load() && !acquired {
		self.monitor.GetReport().Errors.LeaseLost.Inc()
		self.Log.Warn("Lease taken over by another instance")
	}

	self.hasLease.Store(acquired)
	self.monitor.GetReport().State.HasLease.Store(acquired)
	if acquired {
		self.leaseRenewedAt = time.Now()
	}
	return acquired, nil
}

// Hands new messages to the publisher without blocking the loop
func (self *Watcher) notify(result *CommitResult) {
	if self.Output == nil {
		return
	}

	for _, message := range result.Messages {
		select {
		case self.Output <- NewNotification(message):
		default:
			self.monitor.GetReport().State.NotificationsDropped.Inc()
		}
	}
}

func (self *Watcher) recount() error {
	if !self.hasLease.Load() {
		return nil
	}

	err := self.gateway.Recount(self.Ctx)
	if err != nil {
		self.monitor.GetReport().Errors.Recount.Inc()
		return err
	}

	self.monitor.GetReport().State.Recounts.Inc()
	return nil
}

func verifyRange(blocks []*hive.Block, from, to int64) error {
	if int64(len(blocks)) != to-from+1 {
		return fmt.Errorf("%w: expected %d blocks, got %d", ErrBlockRange, to-from+1, len(blocks))
	}
	for i, block := range blocks {
		if block.Height != from+int64(i) {
			return fmt.Errorf("%w: expected block %d, got %d", ErrBlockRange, from+int64(i), block.Height)
		}
	}
	return nil
}
