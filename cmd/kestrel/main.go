package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/samuel/go-hackrf/hackrf"
	"golang.org/x/sync/errgroup"

	"github.com/kestrelsdr/kestrel/pkg/dsp/viz"
	"github.com/kestrelsdr/kestrel/pkg/kestrel"
	"github.com/kestrelsdr/kestrel/pkg/kestrel/config"
	"github.com/kestrelsdr/kestrel/pkg/kestrel/device"
	"github.com/kestrelsdr/kestrel/pkg/kestrel/device/file"
	hackrfDevice "github.com/kestrelsdr/kestrel/pkg/kestrel/device/hackrf"
	"github.com/kestrelsdr/kestrel/pkg/kestrel/device/rtlsdr"
)

const (
	fileByteReadSize = 262144
	fileReadDelay    = time.Microsecond * 16384
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
	configFile := flag.String("config", "kestrel.yaml", "YAML config file")

	flag.Parse()
	if configFile == nil {
		flag.Usage()
		os.Exit(1)
	}

	configContents, err := os.ReadFile(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("error reading config file")
	}
	var cfg config.Config
	if err := yaml.Unmarshal(configContents, &cfg); err != nil {
		log.Fatal().Err(err).Msg("error unmarshaling yaml file")
	}

	var dev device.Device

	if cfg.PlaybackLocation != "" {
		cfg.Device = "file"
	}

	switch cfg.Device {
	case "rtlsdr":
		log.Info().Str("device", "rtlsdr").Msg("initializing device...")
		dev, err = rtlsdr.NewRTLSDRDevice(cfg.RTLSDRDeviceIndex)
		if err != nil {
			log.Fatal().Str("device", "rtlsdr").Err(err).Msg("failed to initialize RTLSDR")
		}
	case "file":
		log.Info().Str("device", "file").Msg("initializing device...")
		// Playback files are expected to be CS8 captures from a HackRF.
		dev, err = file.NewFileDevice(cfg.PlaybackLocation, fileByteReadSize, cfg.SampleRate, cfg.CenterFreq, fileReadDelay)
		if err != nil {
			log.Fatal().Str("device", "file").Err(err).Msg("failed to init file reader")
		}
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	default:
		log.Info().Str("device", "hackrf").Msg("initializing device...")
		if err := hackrf.Init(); err != nil {
			log.Fatal().Str("device", "hackrf").Err(err).Msg("failed to initialize hackRF")
		}
		defer hackrf.Exit()

		if cfg.RecordLocation != "" {
			dev, err = hackrfDevice.NewRecordingHackRFDevice(cfg.RecordLocation)
			if err != nil {
				log.Fatal().Str("device", "hackrf").Err(err).Msg("failed to create hackRF recording device")
			}
		} else {
			dev, err = hackrfDevice.NewHackRFDevice()
			if err != nil {
				log.Fatal().Str("device", "hackrf").Err(err).Msg("failed to create hackRF device")
			}
		}
	}

	vizServer := viz.NewServer(cfg.VizServer.Port, cfg.VizServer.UpdateInterval)

	influxWriteAPI := influxdb2.NewClient(cfg.InfluxDB.Host, "").WriteAPI(cfg.InfluxDB.Organization, cfg.InfluxDB.Bucket)

	engine, err := kestrel.NewEngine(dev,
		kestrel.Options{
			CenterFreq: cfg.CenterFreq,
			SampleRate: cfg.SampleRate,
			Channels:   cfg.Channels,
			AFC:        cfg.AFC,
		},
		kestrel.WithInfluxDB(influxWriteAPI),
		kestrel.WithVizServer(vizServer),
		kestrel.WithLogger(log.Logger))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create engine")
	}

	eg, ctx := errgroup.WithContext(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	eg.Go(func() error {
		select {
		case <-sigChan:
		case <-ctx.Done():
		}
		return engine.Stop()
	})

	eg.Go(func() error {
		return engine.Start(ctx)
	})

	if err := eg.Wait(); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("exited program")
	}
}
