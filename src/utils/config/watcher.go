package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

type Watcher struct {
	// Run the ingestion loop at all
	Enabled bool

	// Accepted custom_json ids. The first one is the primary id, the rest are legacy.
	AppIds []string

	// Height of the last processed block assumed when there's no checkpoint yet.
	// 0 means "start slightly behind the current head".
	StartBlock int64

	// How far behind the head to start when StartBlock is 0
	StartBlocksBehindHead int64

	// Sleep between cycles when caught up
	PollInterval time.Duration

	// Maximum number of blocks ingested in one cycle (and one transaction)
	MaxBatchSize int64

	// Exponential backoff after transient failures
	BackoffInitialInterval time.Duration
	BackoffMaxInterval     time.Duration

	// Time limit for committing one batch
	TxTimeout time.Duration

	// How long the instance lease stays valid without renewal
	LeaseTTL time.Duration

	// Payload limits, anything above is dropped
	MaxContentLength int
	MaxTags          int
	MaxMentions      int
	MaxPayloadBytes  int
	MaxPayloadFields int

	// Buffered notifications waiting for the publisher
	NotificationBufferSize int

	// Cron schedule of the reply count and tag statistics recount
	RecountSchedule string

	// How long the status snapshot is cached
	StatusCacheTTL time.Duration

	// Health check fails when the checkpoint didn't move for this long while behind the head
	StallTimeout time.Duration
}

func setWatcherDefaults() {
	viper.SetDefault("Watcher.Enabled", "true")
	viper.SetDefault("Watcher.AppIds", []string{"hive.micro"})
	viper.SetDefault("Watcher.StartBlock", "0")
	viper.SetDefault("Watcher.StartBlocksBehindHead", "20")
	viper.SetDefault("Watcher.PollInterval", "2500ms")
	viper.SetDefault("Watcher.MaxBatchSize", "50")
	viper.SetDefault("Watcher.BackoffInitialInterval", "2s")
	viper.SetDefault("Watcher.BackoffMaxInterval", "60s")
	viper.SetDefault("Watcher.TxTimeout", "30s")
	viper.SetDefault("Watcher.LeaseTTL", "2m")
	viper.SetDefault("Watcher.MaxContentLength", "512")
	viper.SetDefault("Watcher.MaxTags", "10")
	viper.SetDefault("Watcher.MaxMentions", "10")
	viper.SetDefault("Watcher.MaxPayloadBytes", "8192")
	viper.SetDefault("Watcher.MaxPayloadFields", "16")
	viper.SetDefault("Watcher.NotificationBufferSize", "1000")
	viper.SetDefault("Watcher.RecountSchedule", "@every 10m")
	viper.SetDefault("Watcher.StatusCacheTTL", "5s")
	viper.SetDefault("Watcher.StallTimeout", "5m")
}

func (self *Watcher) validate() (errs []error) {
	if len(self.AppIds) == 0 {
		errs = append(errs, errors.New("no application id configured"))
	}
	if self.MaxBatchSize <= 0 {
		errs = append(errs, errors.New("max batch size must be positive"))
	}
	if self.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if self.StartBlock < 0 {
		errs = append(errs, errors.New("start block can't be negative"))
	}
	if self.LeaseTTL <= 0 {
		errs = append(errs, errors.New("lease ttl must be positive"))
	}
	return
}

// Primary application id, used in status output
func (self *Watcher) AppId() string {
	if len(self.AppIds) == 0 {
		return ""
	}
	return self.AppIds[0]
}
