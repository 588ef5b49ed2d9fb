package config

import (
	"time"

	"github.com/kestrelsdr/kestrel/pkg/kestrel"
)

type Config struct {
	CenterFreq int `yaml:"center_freq"`
	SampleRate int `yaml:"sample_rate"`

	Channels []kestrel.ChannelConfig `yaml:"channels"`
	AFC      kestrel.AFCConfig       `yaml:"afc"`

	RecordLocation   string `yaml:"record_location"`
	PlaybackLocation string `yaml:"playback_location"`

	Device            string `yaml:"device"`
	RTLSDRDeviceIndex int    `yaml:"rtlsdr_device_index"`

	VizServer struct {
		Port           int           `yaml:"port"`
		UpdateInterval time.Duration `yaml:"update_interval_ms"`
	} `yaml:"viz_server"`

	InfluxDB struct {
		Host         string `yaml:"host"`
		Organization string `yaml:"organization"`
		Bucket       string `yaml:"bucket"`
	} `yaml:"influxdb"`
}
