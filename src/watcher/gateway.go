package watcher

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/hive-micro/watcher/src/utils/config"
	"github.com/hive-micro/watcher/src/utils/logger"
	"github.com/hive-micro/watcher/src/utils/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Blocks From..To ready to be committed
type Batch struct {
	// Checkpoint the batch was fetched against, From - 1
	Checkpoint int64

	From int64
	To   int64

	// Actions in block order
	Actions []Action
}

type CommitResult struct {
	// Newly inserted messages
	Messages []*model.Message

	ModerationActions int
	Follows           int
	Appreciations     int

	// Actions that were already stored
	Duplicates int
}

// Writes actions and advances the checkpoint, atomically
type Gateway struct {
	db          *gorm.DB
	log         *logrus.Entry
	config      *config.Watcher
	checkpoints *CheckpointStore

	// Commits and recounts don't interleave
	mtx sync.Mutex
}

func NewGateway(config *config.Config, db *gorm.DB, checkpoints *CheckpointStore) (self *Gateway) {
	self = new(Gateway)
	self.db = db
	self.config = &config.Watcher
	self.checkpoints = checkpoints
	self.log = logger.NewSublogger("gateway")
	return
}

func (self *Gateway) txOptions() (out []*sql.TxOptions) {
	if self.db.Dialector.Name() == "postgres" {
		out = append(out, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	}
	return
}

// Inserts the batch and moves the checkpoint to batch.To in one transaction.
// Nothing is stored if any write fails.
func (self *Gateway) Commit(ctx context.Context, batch *Batch) (out *CommitResult, err error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	ctx, cancel := context.WithTimeout(ctx, self.config.TxTimeout)
	defer cancel()

	result := new(CommitResult)
	err = self.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, action := range batch.Actions {
			err := self.insert(tx, action, result)
			if err != nil {
				meta := action.Meta()
				return fmt.Errorf("failed to store %s action %s from block %d: %w", action.Kind(), meta.TrxId, meta.BlockNum, err)
			}
		}

		return self.checkpoints.Write(tx, batch.Checkpoint, batch.To)
	}, self.txOptions()...)
	if err != nil {
		return
	}

	return result, nil
}

func (self *Gateway) insert(tx *gorm.DB, action Action, result *CommitResult) (err error) {
	var inserted bool
	switch a := action.(type) {
	case *PostAction:
		inserted, err = self.insertMessage(tx, a, result)
	case *ModerationAction:
		inserted, err = self.insertIfAbsent(tx, &model.ModerationAction{
			TrxId:       a.TargetTrxId,
			Moderator:   a.Author,
			Action:      a.Action,
			Reason:      sql.NullString{String: a.Reason, Valid: a.Reason != ""},
			CreatedAt:   a.Timestamp,
			SourceTrxId: sql.NullString{String: a.TrxId, Valid: true},
		})
		if inserted {
			result.ModerationActions++
		}
	case *FollowAction:
		followAction := model.FollowActionFollow
		if a.Unfollow {
			followAction = model.FollowActionUnfollow
		}
		inserted, err = self.insertIfAbsent(tx, &model.Follow{
			TrxId:     a.TrxId,
			BlockNum:  a.BlockNum,
			Timestamp: a.Timestamp,
			Follower:  a.Author,
			Following: a.Following,
			Action:    followAction,
		})
		if inserted {
			result.Follows++
		}
	case *HeartAction:
		inserted, err = self.insertIfAbsent(tx, &model.Appreciation{
			TrxId:       a.TargetTrxId,
			Username:    a.Author,
			CreatedAt:   a.Timestamp,
			SourceTrxId: sql.NullString{String: a.TrxId, Valid: true},
		})
		if inserted {
			result.Appreciations++
		}
	default:
		return fmt.Errorf("unsupported action %T", action)
	}
	if err != nil {
		return
	}

	if !inserted {
		result.Duplicates++
	}
	return nil
}

// Insert that skips rows conflicting with a unique index
func (self *Gateway) insertIfAbsent(tx *gorm.DB, value interface{}) (inserted bool, err error) {
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(value)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (self *Gateway) insertMessage(tx *gorm.DB, action *PostAction, result *CommitResult) (inserted bool, err error) {
	message := &model.Message{
		TrxId:     action.TrxId,
		BlockNum:  action.BlockNum,
		Timestamp: action.Timestamp,
		Author:    action.Author,
		Type:      action.Type,
		Content:   action.Content,
		Mentions:  action.Mentions,
		Tags:      action.Tags,
		ReplyTo:   sql.NullString{String: action.ReplyTo, Valid: action.ReplyTo != ""},
		RawJson:   action.RawJson,
	}
	if message.Mentions == nil {
		message.Mentions = []string{}
	}
	if message.Tags == nil {
		message.Tags = []string{}
	}

	inserted, err = self.insertIfAbsent(tx, message)
	if err != nil || !inserted {
		return
	}

	// Parent may not be ingested yet, it'll count this reply when it gets inserted
	if message.ReplyTo.Valid {
		err = tx.Model(&model.Message{}).
			Where("trx_id = ?", message.ReplyTo.String).
			UpdateColumn("reply_count", gorm.Expr("reply_count + 1")).
			Error
		if err != nil {
			return
		}
	}

	// Replies that got here before the message
	var children int64
	err = tx.Model(&model.Message{}).
		Where("reply_to = ?", message.TrxId).
		Count(&children).
		Error
	if err != nil {
		return
	}
	if children > 0 {
		message.ReplyCount = children
		err = tx.Model(&model.Message{}).
			Where("id = ?", message.Id).
			UpdateColumn("reply_count", children).
			Error
		if err != nil {
			return
		}
	}

	for _, tag := range message.Tags {
		err = self.countTag(tx, tag, message.Timestamp)
		if err != nil {
			return
		}
	}

	result.Messages = append(result.Messages, message)
	return true, nil
}

func (self *Gateway) countTag(tx *gorm.DB, tag string, timestamp time.Time) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tag"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"message_count": gorm.Expr(model.TableTagStat + ".message_count + 1"),
			"last_seen":     timestamp,
		}),
	}).Create(&model.TagStat{
		Tag:          tag,
		MessageCount: 1,
		LastSeen:     timestamp,
	}).Error
}

// Recomputes reply counters and tag statistics from scratch
func (self *Gateway) Recount(ctx context.Context) (err error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	start := time.Now()

	err = self.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Exec(`UPDATE messages SET reply_count = (SELECT COUNT(*) FROM messages AS children WHERE children.reply_to = messages.trx_id)`).Error
		if err != nil {
			return err
		}

		stats := make(map[string]*model.TagStat)
		var messages []*model.Message
		err = tx.Model(&model.Message{}).
			Select("id", "tags", "timestamp").
			FindInBatches(&messages, 500, func(_ *gorm.DB, _ int) error {
				for _, message := range messages {
					for _, tag := range message.Tags {
						stat, ok := stats[tag]
						if !ok {
							stat = &model.TagStat{Tag: tag}
							stats[tag] = stat
						}
						stat.MessageCount++
						if message.Timestamp.After(stat.LastSeen) {
							stat.LastSeen = message.Timestamp
						}
					}
				}
				return nil
			}).Error
		if err != nil {
			return err
		}

		err = tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.TagStat{}).Error
		if err != nil {
			return err
		}

		if len(stats) == 0 {
			return nil
		}

		rows := make([]*model.TagStat, 0, len(stats))
		for _, stat := range stats {
			rows = append(rows, stat)
		}
		return tx.CreateInBatches(rows, 200).Error
	}, self.txOptions()...)
	if err != nil {
		return
	}

	self.log.WithField("duration", time.Since(start)).Debug("Recounted reply counters and tags")
	return
}
