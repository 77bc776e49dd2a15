package config

import "time"

type Config struct {
	HTTP    HTTPConfig
	Run     RunConfig
	Hotplug HotplugConfig
	Archive ArchiveConfig
	Fleet   FleetConfig
}

type HTTPConfig struct {
	Port         int
	EventHistory int
}

type RunConfig struct {
	AutoStart    bool
	MaxAttempts  int
	RetryDelay   time.Duration
	PrintTimeout time.Duration
	ImageDir     string
}

type HotplugConfig struct {
	PollInterval time.Duration
	ProfilesFile string
}

type ArchiveConfig struct {
	DSN string
}

type FleetConfig struct {
	NATSURL string
}
