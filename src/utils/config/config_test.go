package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/suite"
)

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

type ConfigTestSuite struct {
	suite.Suite
}

func (s *ConfigTestSuite) SetupTest() {
	viper.Reset()
}

func (s *ConfigTestSuite) TestDefaults() {
	config := Default()
	s.Require().NotNil(config)
	s.Require().NoError(config.Validate())

	s.Equal([]string{"hive.micro"}, config.Watcher.AppIds)
	s.Equal("hive.micro", config.Watcher.AppId())
	s.Equal(2*time.Second, config.Watcher.BackoffInitialInterval)
	s.Equal(60*time.Second, config.Watcher.BackoffMaxInterval)
	s.Equal(2500*time.Millisecond, config.Watcher.PollInterval)
	s.Equal(512, config.Watcher.MaxContentLength)
	s.True(config.Watcher.Enabled)
	s.Equal(DriverSqlite, config.Database.Driver)
	s.NotEmpty(config.Hive.NodeUrls)
}

func (s *ConfigTestSuite) TestPrefixedEnv() {
	s.T().Setenv("HIVE_MICRO_WATCHER_MAX_BATCH_SIZE", "7")
	s.T().Setenv("HIVE_MICRO_HIVE_NODE_URLS", "http://a.example, http://b.example")

	config, err := Load("")
	s.Require().NoError(err)
	s.Equal(int64(7), config.Watcher.MaxBatchSize)
	s.Equal([]string{"http://a.example", "http://b.example"}, config.Hive.NodeUrls)
}

func (s *ConfigTestSuite) TestLegacyEnv() {
	s.T().Setenv("HIVE_MICRO_WATCHER", "0")
	s.T().Setenv("HIVE_MICRO_APP_ID", "hive.micro.test")
	s.T().Setenv("HIVE_NODES", "https://node.example")
	s.T().Setenv("DATABASE_URL", "postgres://u:p@db.example:5432/micro")

	config, err := Load("")
	s.Require().NoError(err)
	s.False(config.Watcher.Enabled)
	s.Equal([]string{"hive.micro.test"}, config.Watcher.AppIds)
	s.Equal([]string{"https://node.example"}, config.Hive.NodeUrls)
	s.Equal(DriverPostgres, config.Database.Driver)
	s.Equal("postgres://u:p@db.example:5432/micro", config.Database.Dsn)
}

func (s *ConfigTestSuite) TestSqliteUrl() {
	s.T().Setenv("DATABASE_URL", "sqlite:///data/app.db")

	config, err := Load("")
	s.Require().NoError(err)
	s.Equal(DriverSqlite, config.Database.Driver)
	s.Equal("data/app.db", config.Database.SqlitePath)
}

func (s *ConfigTestSuite) TestUnsupportedUrl() {
	s.T().Setenv("DATABASE_URL", "mysql://localhost/db")

	_, err := Load("")
	s.Require().Error(err)
}

func (s *ConfigTestSuite) TestFile() {
	path := filepath.Join(s.T().TempDir(), "config.json")
	err := os.WriteFile(path, []byte(`{"Watcher": {"PollInterval": "10s", "AppIds": ["a", "b"]}}`), 0o600)
	s.Require().NoError(err)

	config, err := Load(path)
	s.Require().NoError(err)
	s.Equal(10*time.Second, config.Watcher.PollInterval)
	s.Equal([]string{"a", "b"}, config.Watcher.AppIds)
}

func (s *ConfigTestSuite) TestValidate() {
	config := Default()
	config.Hive.NodeUrls = nil
	config.Watcher.AppIds = nil
	config.Database.Driver = "oracle"

	err := config.Validate()
	s.Require().Error(err)
	s.Contains(err.Error(), "no hive node configured")
	s.Contains(err.Error(), "no application id configured")
	s.Contains(err.Error(), "unsupported database driver")

	config = Default()
	config.Hive.NodeUrls = []string{"ftp://node.example"}
	s.Require().Error(config.Validate())
}
