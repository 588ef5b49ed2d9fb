package kestrel

import "time"

// AFCConfig enables the automatic frequency control loop across all channels.
type AFCConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	FreqTolerance float64       `yaml:"freq_tolerance"`
}

// Options is the static engine configuration, usually loaded from YAML.
type Options struct {
	CenterFreq int `yaml:"center_freq"`
	SampleRate int `yaml:"sample_rate"`

	Channels []ChannelConfig `yaml:"channels"`
	AFC      AFCConfig       `yaml:"afc"`
}
