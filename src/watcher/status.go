package watcher

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hive-micro/watcher/src/utils/config"
	"github.com/hive-micro/watcher/src/utils/model"
	"github.com/hive-micro/watcher/src/utils/monitor"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

const statusCacheKey = "status"

// Ingestion progress as seen by the UI
type Snapshot struct {
	AppId        string    `json:"app_id"`
	LastBlock    int64     `json:"last_block"`
	MessageCount int64     `json:"messages"`
	ChainHead    int64     `json:"chain_head"`
	BlocksBehind int64     `json:"blocks_behind"`
	State        string    `json:"state"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type StatusProvider struct {
	config  *config.Config
	db      *gorm.DB
	monitor *monitor.Monitor
	client  ChainClient
	cache   *cache.Cache
}

func NewStatusProvider(config *config.Config) (self *StatusProvider) {
	self = new(StatusProvider)
	self.config = config
	if config.Watcher.StatusCacheTTL > 0 {
		self.cache = cache.New(config.Watcher.StatusCacheTTL, 2*config.Watcher.StatusCacheTTL)
	}
	return
}

func (self *StatusProvider) WithDB(db *gorm.DB) *StatusProvider {
	self.db = db
	return self
}

// Source of the loop state and chain head when the watcher runs in this process
func (self *StatusProvider) WithMonitor(monitor *monitor.Monitor) *StatusProvider {
	self.monitor = monitor
	return self
}

// Source of the chain head when the watcher doesn't run in this process
func (self *StatusProvider) WithClient(client ChainClient) *StatusProvider {
	self.client = client
	return self
}

func (self *StatusProvider) Snapshot(ctx context.Context) (out *Snapshot, err error) {
	if self.cache != nil {
		if cached, ok := self.cache.Get(statusCacheKey); ok {
			return cached.(*Snapshot), nil
		}
	}

	out = &Snapshot{
		AppId:     self.config.Watcher.AppId(),
		LastBlock: self.config.Watcher.StartBlock,
		State:     "unknown",
	}

	var checkpoint model.Checkpoint
	err = self.db.WithContext(ctx).
		Where("id = ?", model.CheckpointId).
		Take(&checkpoint).
		Error
	switch {
	case err == nil:
		out.LastBlock = checkpoint.LastBlock
		out.UpdatedAt = checkpoint.UpdatedAt.UTC()
	case errors.Is(err, gorm.ErrRecordNotFound):
		// Nothing ingested yet
	default:
		return nil, err
	}

	err = self.db.WithContext(ctx).
		Model(&model.Message{}).
		Count(&out.MessageCount).
		Error
	if err != nil {
		return nil, err
	}

	if self.monitor != nil {
		out.State = self.monitor.GetReport().State.WatcherState.Load()
		out.ChainHead = self.monitor.GetReport().State.ChainHead.Load()
	}
	if out.ChainHead == 0 && self.client != nil {
		out.ChainHead, err = self.client.CurrentHead(ctx)
		if err != nil {
			return nil, err
		}
	}
	if out.ChainHead > 0 {
		out.BlocksBehind = max(out.ChainHead-out.LastBlock, 0)
	}

	if self.cache != nil {
		self.cache.SetDefault(statusCacheKey, out)
	}
	return
}

func (self *StatusProvider) OnGetStatus(c *gin.Context) {
	snapshot, err := self.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
