package monitor

import (
	"testing"
	"time"

	"github.com/hive-micro/watcher/src/utils/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
)

func TestMonitorTestSuite(t *testing.T) {
	suite.Run(t, new(MonitorTestSuite))
}

type MonitorTestSuite struct {
	suite.Suite
	config *config.Config
}

func (s *MonitorTestSuite) SetupTest() {
	s.config = config.Default()
	s.config.Watcher.StallTimeout = time.Minute
}

func (s *MonitorTestSuite) TestBlocksPerMinute() {
	m := NewMonitor(s.config).WithMaxHistorySize(3)

	for _, h := range []int64{100, 130, 160, 190} {
		m.Report.State.CheckpointHeight.Store(h)
		s.Require().NoError(m.monitorBlocks())
	}

	// History keeps 130, 160, 190
	s.Equal(3, m.BlockHeights.Len())
	s.Equal(20.0, m.Report.State.AverageBlocksProcessedPerMinute.Load())
}

func (s *MonitorTestSuite) TestHealth() {
	m := NewMonitor(s.config)
	s.True(m.IsOK())

	// Running for a while, behind and stuck
	m.Report.State.StartTimestamp.Store(time.Now().Add(-time.Hour).Unix())
	m.Report.State.HasLease.Store(true)
	m.Report.State.BlocksBehind.Store(100)
	m.Report.State.LastCheckpointTimestamp.Store(time.Now().Add(-10 * time.Minute).Unix())
	s.False(m.IsOK())

	// Checkpoint moved recently
	m.Report.State.LastCheckpointTimestamp.Store(time.Now().Unix())
	s.True(m.IsOK())

	// Standby instances are always fine
	m.Report.State.LastCheckpointTimestamp.Store(time.Now().Add(-10 * time.Minute).Unix())
	m.Report.State.HasLease.Store(false)
	s.True(m.IsOK())
}

func (s *MonitorTestSuite) TestCollector() {
	m := NewMonitor(s.config)
	m.Report.State.MessagesSaved.Store(7)

	registry := prometheus.NewRegistry()
	s.Require().NoError(registry.Register(m.GetPrometheusCollector()))

	count, err := testutil.GatherAndCount(registry, "messages_saved")
	s.Require().NoError(err)
	s.Equal(1, count)
	s.Equal(7.0, testutil.ToFloat64(prometheus.Collector(&singleMetric{m.collector, m.collector.MessagesSaved})))
}

// Exposes one metric of the collector
type singleMetric struct {
	collector *Collector
	desc      *prometheus.Desc
}

func (self *singleMetric) Describe(ch chan<- *prometheus.Desc) {
	ch <- self.desc
}

func (self *singleMetric) Collect(ch chan<- prometheus.Metric) {
	all := make(chan prometheus.Metric, 64)
	self.collector.Collect(all)
	close(all)
	for metric := range all {
		if metric.Desc() == self.desc {
			ch <- metric
		}
	}
}
