package watcher

import (
	"context"
	"fmt"

	"github.com/hive-micro/watcher/src/utils/config"
	"github.com/hive-micro/watcher/src/utils/hive"
	"github.com/hive-micro/watcher/src/utils/model"
	"github.com/hive-micro/watcher/src/utils/monitor"
	"github.com/hive-micro/watcher/src/utils/publisher"
	"github.com/hive-micro/watcher/src/utils/task"
)

type Controller struct {
	*task.Task
}

// Main class that orchestrates the watcher
// Sets up ingestion, the status server and notifications
func NewController(ctx context.Context, config *config.Config) (self *Controller, err error) {
	self = new(Controller)

	err = config.Validate()
	if err != nil {
		return nil, err
	}

	self.Task = task.NewTask(config, "controller")

	db, err := model.NewConnection(ctx, config, "watcher")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	monitor := monitor.NewMonitor(config)

	client := hive.NewClient(config).
		WithOnFailover(func(node string, err error) {
			monitor.GetReport().Errors.NodeFailover.Inc()
		})

	watcher := NewWatcher(config).
		WithClient(client).
		WithDB(db).
		WithMonitor(monitor)

	status := NewStatusProvider(config).
		WithDB(db).
		WithMonitor(monitor).
		WithClient(client)

	server := NewServer(config).
		WithMonitor(monitor).
		WithStatus(status)

	self.Task = self.Task.
		WithSubtask(monitor.Task).
		WithSubtask(server.Task).
		WithSubtask(watcher.Task)

	if config.Redis.Enabled {
		watcher = watcher.WithNotifications()

		redisPublisher := publisher.NewRedisPublisher[*Notification](config, "redis-publisher").
			WithInputChannel(watcher.Output).
			WithMonitor(monitor)

		self.Task = self.Task.WithSubtask(redisPublisher.Task)
	}

	return
}
