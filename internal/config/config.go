package config

import (
	"os"
	"time"
)

// Config holds every recognized shuffle option. It is built once at
// process start and passed by reference into each component; nothing
// mutates it afterwards.
type Config struct {
	BlockSizeKB          int           // block size threshold in KiB
	MinPollInterval      time.Duration // scheduler sleep between passes
	MaxPollInterval      time.Duration // reserved, not consumed by the control loop
	MaxConcurrentFetches int           // fetch worker pool width per reduce partition
	MaxConcurrentSends   int           // file server send cap
	MaxFetchRetries      int           // failed attempts per split before giving up
	LocalRootDir         string        // parent dir for the private shuffle root
	ServerPort           int           // file server port, 0 picks a free one
	ServerDocRoot        string        // overrides the served root when an external file server layout is used
}

func Default() *Config {
	return &Config{
		BlockSizeKB:          1024,
		MinPollInterval:      1000 * time.Millisecond,
		MaxPollInterval:      5000 * time.Millisecond,
		MaxConcurrentFetches: 4,
		MaxConcurrentSends:   8,
		MaxFetchRetries:      8,
		LocalRootDir:         os.TempDir(),
	}
}

// BlockSizeBytes returns the block threshold in bytes.
func (c *Config) BlockSizeBytes() int64 {
	return int64(c.BlockSizeKB) * 1024
}
