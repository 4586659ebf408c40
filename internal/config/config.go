// Package config loads daemon configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/blink-morse/internal/gpio"
	"github.com/sweeney/blink-morse/internal/logic"
)

// EnvPrefix is the namespace prefix for all environment overrides.
const EnvPrefix = "BLINK_MORSE_"

// Config holds all daemon configuration.
type Config struct {
	Decoder   DecoderConfig `yaml:"decoder"`
	MQTT      MQTTConfig    `yaml:"mqtt"`
	HTTP      HTTPConfig    `yaml:"http"`
	GPIO      GPIOConfig    `yaml:"gpio"`
	Input     InputConfig   `yaml:"input"`
	Poll      time.Duration `yaml:"poll"`
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// DecoderConfig holds the Morse timing constants.
type DecoderConfig struct {
	EARThreshold float64       `yaml:"ear_threshold"`
	DotTime      time.Duration `yaml:"dot_time"`
	DashTime     time.Duration `yaml:"dash_time"`
	CharGap      time.Duration `yaml:"char_gap"`
	WordGap      time.Duration `yaml:"word_gap"`
}

// MQTTConfig configures the broker connection. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
}

// HTTPConfig configures the status server. An empty address disables it,
// along with websocket input.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// GPIOConfig configures the physical reset button.
type GPIOConfig struct {
	Enabled  bool          `yaml:"enabled"`
	ResetPin int           `yaml:"reset_pin"`
	Debounce time.Duration `yaml:"debounce"`
}

// InputConfig selects where EAR samples come from. With CSV set, the
// recording is replayed instead of accepting websocket samples.
type InputConfig struct {
	CSV string `yaml:"csv"`
}

// Defaults returns the stock configuration.
func Defaults() Config {
	d := logic.DefaultConfig()
	return Config{
		Decoder: DecoderConfig{
			EARThreshold: d.EARThreshold,
			DotTime:      d.DotTime,
			DashTime:     d.DashTime,
			CharGap:      d.CharGap,
			WordGap:      d.WordGap,
		},
		MQTT: MQTTConfig{
			Broker:   "tcp://localhost:1883",
			ClientID: "blink-morse",
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		GPIO: GPIOConfig{
			ResetPin: gpio.DefaultPinReset,
			Debounce: 50 * time.Millisecond,
		},
		Poll:      20 * time.Millisecond,
		Heartbeat: 15 * time.Minute,
	}
}

// Load reads configuration from a YAML file (if path is non-empty and the
// file exists), applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// DecoderConfig converts the decoder section to the decoder's own type.
func (c Config) DecoderConfig() logic.Config {
	return logic.Config{
		EARThreshold: c.Decoder.EARThreshold,
		DotTime:      c.Decoder.DotTime,
		DashTime:     c.Decoder.DashTime,
		CharGap:      c.Decoder.CharGap,
		WordGap:      c.Decoder.WordGap,
	}
}

// InputName describes the configured sample source.
func (c Config) InputName() string {
	if c.Input.CSV != "" {
		return "csv:" + c.Input.CSV
	}
	return "websocket"
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	if err := c.DecoderConfig().Validate(); err != nil {
		return fmt.Errorf("decoder: %w", err)
	}
	if c.Poll <= 0 {
		return fmt.Errorf("poll must be positive, got %v", c.Poll)
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("heartbeat must not be negative, got %v", c.Heartbeat)
	}
	if c.GPIO.Enabled {
		if c.GPIO.ResetPin < 0 {
			return fmt.Errorf("gpio: invalid reset pin %d", c.GPIO.ResetPin)
		}
		if c.GPIO.Debounce < 0 {
			return fmt.Errorf("gpio: debounce must not be negative, got %v", c.GPIO.Debounce)
		}
	}
	if c.Input.CSV == "" && c.HTTP.Addr == "" {
		return fmt.Errorf("no input: set input.csv or http.addr")
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func applyEnvOverrides(cfg *Config) error {
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"DOT_TIME", &cfg.Decoder.DotTime},
		{"DASH_TIME", &cfg.Decoder.DashTime},
		{"CHAR_GAP", &cfg.Decoder.CharGap},
		{"WORD_GAP", &cfg.Decoder.WordGap},
		{"GPIO_DEBOUNCE", &cfg.GPIO.Debounce},
		{"POLL", &cfg.Poll},
		{"HEARTBEAT", &cfg.Heartbeat},
	}
	for _, d := range durations {
		v := strings.TrimSpace(os.Getenv(EnvPrefix + d.key))
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, d.key, err)
		}
		*d.dst = parsed
	}

	if v := strings.TrimSpace(os.Getenv(EnvPrefix + "EAR_THRESHOLD")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sEAR_THRESHOLD: %w", EnvPrefix, err)
		}
		cfg.Decoder.EARThreshold = f
	}
	if v := strings.TrimSpace(os.Getenv(EnvPrefix + "GPIO_RESET_PIN")); v != "" {
		pin, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sGPIO_RESET_PIN: %w", EnvPrefix, err)
		}
		cfg.GPIO.ResetPin = pin
	}
	if v := strings.TrimSpace(os.Getenv(EnvPrefix + "GPIO_ENABLED")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sGPIO_ENABLED: %w", EnvPrefix, err)
		}
		cfg.GPIO.Enabled = b
	}

	// Strings may be set to "-" to clear a default.
	strs := []struct {
		key string
		dst *string
	}{
		{"MQTT_BROKER", &cfg.MQTT.Broker},
		{"MQTT_CLIENT_ID", &cfg.MQTT.ClientID},
		{"HTTP_ADDR", &cfg.HTTP.Addr},
		{"INPUT_CSV", &cfg.Input.CSV},
	}
	for _, s := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + s.key); ok && v != "" {
			if v == "-" {
				v = ""
			}
			*s.dst = v
		}
	}
	return nil
}
