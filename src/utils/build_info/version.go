package build_info

// Set with -ldflags "-X github.com/hive-micro/watcher/src/utils/build_info.Version=..."
var Version = "dev"
