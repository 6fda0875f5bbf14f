package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/GoldenFealla/SyncPlayerGo/internal/media"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Audio   AudioConfig   `yaml:"audio"`
	Video   VideoConfig   `yaml:"video"`
	Sync    SyncConfig    `yaml:"sync"`
	Queues  QueueConfig   `yaml:"queues"`
	Logging LoggingConfig `yaml:"logging"`
}

type AudioConfig struct {
	SampleRate int           `yaml:"sample_rate"`
	Channels   int           `yaml:"channels"`
	Buffer     time.Duration `yaml:"buffer"`
	Volume     float64       `yaml:"volume"`
}

type VideoConfig struct {
	// Width and Height scale the picture; zero keeps the source size.
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Title  string `yaml:"title"`
}

type SyncConfig struct {
	Slack        time.Duration `yaml:"slack"`
	NominalDelay time.Duration `yaml:"nominal_delay"`
	PopTimeout   time.Duration `yaml:"pop_timeout"`
	HoldPoll     time.Duration `yaml:"hold_poll"`
	SinkWait     time.Duration `yaml:"sink_wait"`
	WorkerIdle   time.Duration `yaml:"worker_idle"`
}

type QueueConfig struct {
	Video int `yaml:"video"`
	Audio int `yaml:"audio"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func Default() *Config {
	mc := media.DefaultConfig()

	return &Config{
		Audio: AudioConfig{
			SampleRate: 44100,
			Channels:   2,
			Volume:     1,
		},
		Video: VideoConfig{
			Title: "SyncPlayer",
		},
		Sync: SyncConfig{
			Slack:        mc.Presenter.Slack,
			NominalDelay: mc.Presenter.NominalDelay,
			PopTimeout:   mc.Presenter.PopTimeout,
			HoldPoll:     mc.Presenter.HoldPoll,
			SinkWait:     mc.SinkWait,
			WorkerIdle:   mc.WorkerIdle,
		},
		Queues: QueueConfig{
			Video: mc.VideoQueueSize,
			Audio: mc.AudioQueueSize,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load reads path over the defaults. An empty path or a missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: reading %s failed: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: parsing %s failed: %w", path, err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		return fmt.Errorf("config: invalid audio sample rate %d (must be between 8000-192000)", c.Audio.SampleRate)
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		return fmt.Errorf("config: invalid audio channels %d (must be 1 or 2)", c.Audio.Channels)
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 1 {
		return fmt.Errorf("config: invalid audio volume %v (must be between 0-1)", c.Audio.Volume)
	}
	if c.Audio.Buffer < 0 {
		return fmt.Errorf("config: invalid audio buffer %v", c.Audio.Buffer)
	}

	if c.Video.Width < 0 || c.Video.Height < 0 {
		return fmt.Errorf("config: invalid video size %dx%d", c.Video.Width, c.Video.Height)
	}

	for name, d := range map[string]time.Duration{
		"slack":         c.Sync.Slack,
		"nominal_delay": c.Sync.NominalDelay,
		"pop_timeout":   c.Sync.PopTimeout,
		"hold_poll":     c.Sync.HoldPoll,
		"sink_wait":     c.Sync.SinkWait,
		"worker_idle":   c.Sync.WorkerIdle,
	} {
		if d <= 0 {
			return fmt.Errorf("config: invalid sync %s %v (must be positive)", name, d)
		}
	}

	if c.Queues.Video < 1 || c.Queues.Audio < 1 {
		return fmt.Errorf("config: invalid queue depths video=%d audio=%d (must be at least 1)", c.Queues.Video, c.Queues.Audio)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error", "disabled":
	default:
		return fmt.Errorf("config: invalid log level %q", c.Logging.Level)
	}

	return nil
}

func (c *Config) Media() media.Config {
	return media.Config{
		VideoQueueSize: c.Queues.Video,
		AudioQueueSize: c.Queues.Audio,
		SinkWait:       c.Sync.SinkWait,
		WorkerIdle:     c.Sync.WorkerIdle,
		Presenter: media.PresenterConfig{
			PopTimeout:   c.Sync.PopTimeout,
			HoldPoll:     c.Sync.HoldPoll,
			Slack:        c.Sync.Slack,
			NominalDelay: c.Sync.NominalDelay,
		},
	}
}
