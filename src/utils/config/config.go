package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/iancoleman/strcase"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const ENV_PREFIX = "HIVE_MICRO_"

// Config stores global configuration
type Config struct {
	// Is development mode on
	IsDevelopment bool

	// REST API address. API used for status, monitoring etc.
	RESTListenAddress string

	// Maximum time the watcher will be closing before stop is forced.
	StopTimeout time.Duration

	// Logging level
	LogLevel string

	Database Database
	Hive     Hive
	Watcher  Watcher
	Redis    Redis
	Profiler Profiler
}

// Environment variable names used by the web application that runs next to the watcher.
// They are honoured in addition to the prefixed names.
var legacyEnv = map[string][]string{
	"Watcher.Enabled": {"HIVE_MICRO_WATCHER"},
	"Watcher.AppIds":  {"HIVE_MICRO_APP_ID"},
	"Hive.NodeUrls":   {"HIVE_NODES"},
	"Database.Url":    {"DATABASE_URL"},
}

func setDefaults() {
	viper.SetDefault("IsDevelopment", "false")
	viper.SetDefault("RESTListenAddress", ":7777")
	viper.SetDefault("LogLevel", "INFO")
	viper.SetDefault("StopTimeout", "30s")

	setDatabaseDefaults()
	setHiveDefaults()
	setWatcherDefaults()
	setRedisDefaults()
	setProfilerDefaults()
}

func Default() (config *Config) {
	config, _ = Load("")
	return
}

func BindEnv(path []string, val reflect.Value) {
	if val.Kind() != reflect.Struct {
		// Base types and slices of base types
		key := strings.Join(path, ".")
		env := ENV_PREFIX + strcase.ToScreamingSnake(strings.Join(path, "_"))
		err := viper.BindEnv(key, env)
		if err != nil {
			panic(err)
		}
		return
	}

	// Iterates over struct fields
	for i := 0; i < val.NumField(); i++ {
		newPath := make([]string, len(path))
		copy(newPath, path)
		newPath = append(newPath, val.Type().Field(i).Name)
		BindEnv(newPath, val.Field(i))
	}
}

func bindLegacyEnv() {
	for key, envs := range legacyEnv {
		// Appended after the prefixed name, so the prefixed variable wins
		err := viper.BindEnv(append([]string{key}, envs...)...)
		if err != nil {
			panic(err)
		}
	}
}

func decodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
}

// Load configuration from file and env
func Load(filename string) (config *Config, err error) {
	viper.SetConfigType("json")

	setDefaults()

	// Visits every field and registers upper snake case ENV name for it
	// Works with embedded structs
	BindEnv([]string{}, reflect.ValueOf(Config{}))
	bindLegacyEnv()

	// Empty filename means we use default values
	if filename != "" {
		var content []byte
		/* #nosec */
		content, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}

		err = viper.ReadConfig(bytes.NewBuffer(content))
		if err != nil {
			return nil, err
		}
	}

	config = new(Config)
	err = viper.Unmarshal(&config, decodeHook())
	if err != nil {
		return nil, err
	}

	config.Hive.NodeUrls = trimAll(config.Hive.NodeUrls)
	config.Watcher.AppIds = trimAll(config.Watcher.AppIds)

	err = config.Database.applyUrl()
	if err != nil {
		return nil, err
	}

	return
}

// Validate reports configuration errors that make running the watcher impossible
func (self *Config) Validate() (err error) {
	var errs []error
	errs = append(errs, self.Hive.validate()...)
	errs = append(errs, self.Watcher.validate()...)
	errs = append(errs, self.Database.validate()...)
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
}

func trimAll(in []string) (out []string) {
	out = make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return
}
