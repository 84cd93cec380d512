package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

type Hive struct {
	// Ordered list of JSON-RPC endpoints. The first one is preferred.
	NodeUrls []string

	// Time limit for a single request to a single node
	RequestTimeout time.Duration

	// Time limit for establishing a connection
	DialerTimeout time.Duration

	// Keep alive period for idle connections
	DialerKeepAlive time.Duration

	// Maximum number of requests per second sent to one node
	MaxRequestsPerSecond float64

	// Number of blocks requested in one get_block_range call
	BlockRangeSize int

	// Follow the last irreversible block instead of the head block
	UseIrreversible bool
}

func setHiveDefaults() {
	viper.SetDefault("Hive.NodeUrls", []string{"https://api.hive.blog", "https://api.openhive.network"})
	viper.SetDefault("Hive.RequestTimeout", "10s")
	viper.SetDefault("Hive.DialerTimeout", "5s")
	viper.SetDefault("Hive.DialerKeepAlive", "30s")
	viper.SetDefault("Hive.MaxRequestsPerSecond", "20")
	viper.SetDefault("Hive.BlockRangeSize", "50")
	viper.SetDefault("Hive.UseIrreversible", "false")
}

func (self *Hive) validate() (errs []error) {
	if len(self.NodeUrls) == 0 {
		errs = append(errs, errors.New("no hive node configured"))
	}
	for _, nodeUrl := range self.NodeUrls {
		u, err := url.Parse(nodeUrl)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid hive node url %q: %w", nodeUrl, err))
			continue
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, fmt.Errorf("invalid hive node url %q: unsupported scheme", nodeUrl))
		}
	}
	if self.BlockRangeSize <= 0 {
		errs = append(errs, errors.New("block range size must be positive"))
	}
	if self.MaxRequestsPerSecond <= 0 {
		errs = append(errs, errors.New("max requests per second must be positive"))
	}
	return
}
