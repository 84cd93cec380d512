package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hive-micro/watcher/src/utils/config"
	"github.com/hive-micro/watcher/src/utils/logger"
	"github.com/hive-micro/watcher/src/utils/model"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Durable height of the last ingested block, together with the lease that
// makes sure only one process ingests at a time.
type CheckpointStore struct {
	db       *gorm.DB
	log      *logrus.Entry
	config   *config.Watcher
	owner    string
	leaseTTL time.Duration
}

func NewCheckpointStore(config *config.Config, db *gorm.DB) (self *CheckpointStore) {
	self = new(CheckpointStore)
	self.db = db
	self.config = &config.Watcher
	self.leaseTTL = config.Watcher.LeaseTTL
	self.owner = xid.New().String()
	self.log = logger.NewSublogger("checkpoint").WithField("owner", self.owner)
	return
}

// Lease owner id of this process
func (self *CheckpointStore) Owner() string {
	return self.owner
}

// Returns nil if there's no checkpoint yet
func (self *CheckpointStore) Get(ctx context.Context) (out *model.Checkpoint, err error) {
	out = new(model.Checkpoint)
	err = self.db.WithContext(ctx).
		Where("id = ?", model.CheckpointId).
		Take(out).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return
}

func (self *CheckpointStore) Exists(ctx context.Context) (bool, error) {
	checkpoint, err := self.Get(ctx)
	return checkpoint != nil, err
}

// Height of the last ingested block, configured start block if nothing got ingested yet
func (self *CheckpointStore) Read(ctx context.Context) (height int64, err error) {
	checkpoint, err := self.Get(ctx)
	if err != nil {
		return
	}
	if checkpoint == nil {
		return self.config.StartBlock, nil
	}
	return checkpoint.LastBlock, nil
}

// Creates the checkpoint if it doesn't exist. Never overwrites.
func (self *CheckpointStore) Init(ctx context.Context, height int64) (err error) {
	if height < 0 {
		return fmt.Errorf("%w: %d", ErrCheckpointRegression, height)
	}

	res := self.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.Checkpoint{
			Id:        model.CheckpointId,
			LastBlock: height,
			UpdatedAt: time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}

	if res.RowsAffected > 0 {
		self.log.WithField("height", height).Info("Checkpoint initialized")
	}
	return nil
}

// Moves the checkpoint from expected to height and renews the lease.
// Has to be called within the batch transaction.
func (self *CheckpointStore) Write(tx *gorm.DB, expected, height int64) error {
	if height < expected {
		return fmt.Errorf("%w: %d -> %d", ErrCheckpointRegression, expected, height)
	}

	now := time.Now().UTC()
	res := tx.Model(&model.Checkpoint{}).
		Where("id = ?", model.CheckpointId).
		Where("last_block = ?", expected).
		Where("owner = ?", self.owner).
		Updates(map[string]interface{}{
			"last_block":       height,
			"lease_expires_at": now.Add(self.leaseTTL),
			"updated_at":       now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCheckpointMoved
	}
	return nil
}

// Takes over or renews the lease. Returns false if another process holds a valid lease.
func (self *CheckpointStore) AcquireLease(ctx context.Context) (acquired bool, err error) {
	checkpoint, err := self.Get(ctx)
	if err != nil {
		return
	}
	if checkpoint == nil {
		return false, errors.New("checkpoint isn't initialized")
	}

	now := time.Now().UTC()
	if checkpoint.Owner.Valid &&
		checkpoint.Owner.String != self.owner &&
		checkpoint.LeaseExpiresAt.Valid &&
		checkpoint.LeaseExpiresAt.Time.After(now) {
		// Someone else is ingesting
		return false, nil
	}

	res := self.db.WithContext(ctx).
		Model(&model.Checkpoint{}).
		Where("id = ?", model.CheckpointId).
		Where("lease_version = ?", checkpoint.LeaseVersion).
		Updates(map[string]interface{}{
			"owner":            self.owner,
			"lease_expires_at": now.Add(self.leaseTTL),
			"lease_version":    checkpoint.LeaseVersion + 1,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the race
		return false, nil
	}

	if !checkpoint.Owner.Valid || checkpoint.Owner.String != self.owner {
		self.log.WithField("previous_owner", checkpoint.Owner.String).Info("Lease acquired")
	}
	return true, nil
}

// Gives up the lease so that a standby instance can take over immediately
func (self *CheckpointStore) ReleaseLease(ctx context.Context) error {
	return self.db.WithContext(ctx).
		Model(&model.Checkpoint{}).
		Where("id = ?", model.CheckpointId).
		Where("owner = ?", self.owner).
		Updates(map[string]interface{}{
			"owner":            nil,
			"lease_expires_at": nil,
		}).
		Error
}
