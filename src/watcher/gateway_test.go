package watcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hive-micro/watcher/src/utils/config"
	"github.com/hive-micro/watcher/src/utils/model"
	"github.com/hive-micro/watcher/src/utils/model/modeltest"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

func TestGatewayTestSuite(t *testing.T) {
	suite.Run(t, new(GatewayTestSuite))
}

type GatewayTestSuite struct {
	suite.Suite
	ctx         context.Context
	config      *config.Config
	db          *gorm.DB
	checkpoints *CheckpointStore
	gateway     *Gateway
}

func (s *GatewayTestSuite) SetupTest() {
	var err error
	s.ctx = context.Background()
	s.config = config.Default()
	s.db, err = modeltest.NewSqlite(s.ctx, s.config)
	s.Require().NoError(err)

	s.checkpoints = NewCheckpointStore(s.config, s.db)
	s.Require().NoError(s.checkpoints.Init(s.ctx, 499))
	acquired, err := s.checkpoints.AcquireLease(s.ctx)
	s.Require().NoError(err)
	s.Require().True(acquired)

	s.gateway = NewGateway(s.config, s.db, s.checkpoints)
}

func meta(n int, height int64, author string) ActionMeta {
	return ActionMeta{
		TrxId:     trxId(n),
		BlockNum:  height,
		Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(height) * 3 * time.Second),
		Author:    author,
		AppId:     "hive.micro",
		RawJson:   []byte(`{"type":"post"}`),
	}
}

func newPost(n int, height int64, author, content string, tags ...string) *PostAction {
	return &PostAction{
		ActionMeta: meta(n, height, author),
		Type:       model.MessageTypePost,
		Content:    content,
		Tags:       tags,
	}
}

func newReply(n int, height int64, author string, parent int) *PostAction {
	return &PostAction{
		ActionMeta: meta(n, height, author),
		Type:       model.MessageTypeReply,
		Content:    "reply",
		ReplyTo:    trxId(parent),
	}
}

func (s *GatewayTestSuite) commit(from, to int64, actions ...Action) (*CommitResult, error) {
	return s.gateway.Commit(s.ctx, &Batch{Checkpoint: from - 1, From: from, To: to, Actions: actions})
}

func (s *GatewayTestSuite) count(value interface{}) (n int64) {
	s.Require().NoError(s.db.Model(value).Count(&n).Error)
	return
}

func (s *GatewayTestSuite) message(n int) *model.Message {
	var message model.Message
	s.Require().NoError(s.db.Where("trx_id = ?", trxId(n)).Take(&message).Error)
	return &message
}

func (s *GatewayTestSuite) lastBlock() int64 {
	height, err := s.checkpoints.Read(s.ctx)
	s.Require().NoError(err)
	return height
}

func (s *GatewayTestSuite) TestCommit() {
	result, err := s.commit(500, 500,
		newPost(1, 500, "alice", "hello #test @bob", "test"),
		&ModerationAction{ActionMeta: meta(2, 500, "mod"), Action: "hide", TargetTrxId: trxId(1), Reason: "spam"},
		&FollowAction{ActionMeta: meta(3, 500, "alice"), Following: "bob"},
		&HeartAction{ActionMeta: meta(4, 500, "bob"), TargetTrxId: trxId(1)},
	)
	s.Require().NoError(err)
	s.Len(result.Messages, 1)
	s.Equal(1, result.ModerationActions)
	s.Equal(1, result.Follows)
	s.Equal(1, result.Appreciations)
	s.Zero(result.Duplicates)
	s.Equal(int64(500), s.lastBlock())

	message := s.message(1)
	s.Equal("alice", message.Author)
	s.Equal(int64(500), message.BlockNum)
	s.Equal([]string{"test"}, []string(message.Tags))
	s.Empty(message.Mentions)
	s.False(message.ReplyTo.Valid)
	s.NotZero(message.Id)
	s.Equal(message.Id, result.Messages[0].Id)

	var moderation model.ModerationAction
	s.Require().NoError(s.db.Take(&moderation).Error)
	s.Equal(trxId(1), moderation.TrxId)
	s.Equal("mod", moderation.Moderator)
	s.Equal(trxId(2), moderation.SourceTrxId.String)
	s.Equal("spam", moderation.Reason.String)

	var follow model.Follow
	s.Require().NoError(s.db.Take(&follow).Error)
	s.Equal("alice", follow.Follower)
	s.Equal("bob", follow.Following)
	s.Equal(model.FollowActionFollow, follow.Action)

	var appreciation model.Appreciation
	s.Require().NoError(s.db.Take(&appreciation).Error)
	s.Equal(trxId(1), appreciation.TrxId)
	s.Equal("bob", appreciation.Username)

	var stat model.TagStat
	s.Require().NoError(s.db.Take(&stat, "tag = ?", "test").Error)
	s.Equal(int64(1), stat.MessageCount)
}

func (s *GatewayTestSuite) TestIdempotency() {
	actions := []Action{
		newPost(1, 500, "alice", "one", "hive"),
		newPost(2, 500, "bob", "two", "hive"),
		&HeartAction{ActionMeta: meta(3, 500, "carol"), TargetTrxId: trxId(1)},
	}

	result, err := s.commit(500, 500, actions...)
	s.Require().NoError(err)
	s.Len(result.Messages, 2)

	// Same block processed again
	result, err = s.gateway.Commit(s.ctx, &Batch{Checkpoint: 500, From: 500, To: 500, Actions: actions})
	s.Require().NoError(err)
	s.Empty(result.Messages)
	s.Equal(3, result.Duplicates)

	s.Equal(int64(2), s.count(&model.Message{}))
	s.Equal(int64(1), s.count(&model.Appreciation{}))

	var stat model.TagStat
	s.Require().NoError(s.db.Take(&stat, "tag = ?", "hive").Error)
	s.Equal(int64(2), stat.MessageCount)
}

func (s *GatewayTestSuite) TestDuplicateWithinBatch() {
	// Second heart for the same message by the same user
	result, err := s.commit(500, 501,
		&HeartAction{ActionMeta: meta(1, 500, "carol"), TargetTrxId: trxId(9)},
		&HeartAction{ActionMeta: meta(2, 501, "carol"), TargetTrxId: trxId(9)},
		newPost(3, 501, "alice", "one"),
		newPost(3, 501, "alice", "same transaction"),
	)
	s.Require().NoError(err)
	s.Equal(1, result.Appreciations)
	s.Len(result.Messages, 1)
	s.Equal(2, result.Duplicates)
	s.Equal("one", s.message(3).Content)
}

func (s *GatewayTestSuite) TestReplyCounts() {
	// Reply in the same batch, after the parent
	_, err := s.commit(500, 501,
		newPost(1, 500, "alice", "parent"),
		newReply(2, 501, "bob", 1),
	)
	s.Require().NoError(err)
	s.Equal(int64(1), s.message(1).ReplyCount)

	// Reply to a message that isn't known
	_, err = s.commit(502, 502, newReply(3, 502, "bob", 10))
	s.Require().NoError(err)
	s.Equal(trxId(10), s.message(3).ReplyTo.String)
	s.Equal(int64(3), s.count(&model.Message{}))
}

func (s *GatewayTestSuite) TestForwardReference() {
	// Child stored before the parent, in reversed order within one batch
	_, err := s.commit(500, 501,
		newReply(2, 500, "bob", 1),
		newReply(3, 500, "carol", 1),
		newPost(1, 501, "alice", "parent"),
	)
	s.Require().NoError(err)
	s.Equal(int64(2), s.message(1).ReplyCount)

	// Across batches
	_, err = s.commit(502, 502, newReply(5, 502, "bob", 4))
	s.Require().NoError(err)
	_, err = s.commit(503, 503, newPost(4, 503, "alice", "late parent"))
	s.Require().NoError(err)
	s.Equal(int64(1), s.message(4).ReplyCount)
}

func (s *GatewayTestSuite) TestPartialBatchIsRolledBack() {
	err := s.db.Callback().Create().Before("gorm:create").Register("test:fail", func(tx *gorm.DB) {
		if message, ok := tx.Statement.Dest.(*model.Message); ok && message.TrxId == trxId(4) {
			_ = tx.AddError(errors.New("disk full"))
		}
	})
	s.Require().NoError(err)

	actions := make([]Action, 0, 5)
	for i := 1; i <= 5; i++ {
		actions = append(actions, newPost(i, 500, "alice", "message", "hive"))
	}

	result, err := s.commit(500, 500, actions...)
	s.Error(err)
	s.Nil(result)

	s.Zero(s.count(&model.Message{}))
	s.Zero(s.count(&model.TagStat{}))
	s.Equal(int64(499), s.lastBlock())
}

func (s *GatewayTestSuite) TestCheckpointMoved() {
	_, err := s.gateway.Commit(s.ctx, &Batch{Checkpoint: 400, From: 401, To: 410, Actions: []Action{newPost(1, 405, "alice", "x")}})
	s.ErrorIs(err, ErrCheckpointMoved)
	s.Zero(s.count(&model.Message{}))
}

func (s *GatewayTestSuite) TestRecount() {
	_, err := s.commit(500, 502,
		newPost(1, 500, "alice", "one", "hive", "go"),
		newPost(2, 501, "bob", "two", "hive"),
		newReply(3, 502, "carol", 1),
	)
	s.Require().NoError(err)

	// Drift
	s.Require().NoError(s.db.Model(&model.Message{}).Where("trx_id = ?", trxId(1)).UpdateColumn("reply_count", 7).Error)
	s.Require().NoError(s.db.Create(&model.TagStat{Tag: "stale", MessageCount: 3, LastSeen: time.Now()}).Error)
	s.Require().NoError(s.db.Model(&model.TagStat{}).Where("tag = ?", "hive").UpdateColumn("message_count", 40).Error)

	s.Require().NoError(s.gateway.Recount(s.ctx))

	s.Equal(int64(1), s.message(1).ReplyCount)
	s.Equal(int64(0), s.message(2).ReplyCount)

	var stats []model.TagStat
	s.Require().NoError(s.db.Order("tag").Find(&stats).Error)
	s.Require().Len(stats, 2)
	s.Equal("go", stats[0].Tag)
	s.Equal(int64(1), stats[0].MessageCount)
	s.Equal("hive", stats[1].Tag)
	s.Equal(int64(2), stats[1].MessageCount)
	s.WithinDuration(s.message(2).Timestamp, stats[1].LastSeen, time.Second)
}
