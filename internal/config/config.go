package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries all runtime settings for the relay and the terminal client.
type Config struct {
	EventLog *EventLogConfig `json:"event_log"`
	HTTP     *HTTPConfig     `json:"http"`
	Channel  *ChannelConfig  `json:"channel"`
	Chat     *ChatConfig     `json:"chat"`
}

// EventLogConfig controls the relay's optional sqlite event log. An empty
// path disables it.
type EventLogConfig struct {
	Path string `json:"path"`
}

type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// ChannelConfig tunes the client's connection manager.
type ChannelConfig struct {
	URL            string        `json:"url"`
	ReconnectDelay time.Duration `json:"reconnect_delay"`
	ReconnectMax   time.Duration `json:"reconnect_max"`
}

// ChatConfig tunes the chat surfaces.
type ChatConfig struct {
	DedupWindow   time.Duration `json:"dedup_window"`
	TypingTimeout time.Duration `json:"typing_timeout"`
	IdentityURL   string        `json:"identity_url"`
}

func DefaultConfig() *Config {
	return &Config{
		EventLog: &EventLogConfig{
			Path: "",
		},
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Channel: &ChannelConfig{
			URL:            "ws://localhost:8080/ws",
			ReconnectDelay: time.Second,
			ReconnectMax:   30 * time.Second,
		},
		Chat: &ChatConfig{
			DedupWindow:   1000 * time.Millisecond,
			TypingTimeout: 3000 * time.Millisecond,
			IdentityURL:   "",
		},
	}
}

func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.Channel == nil {
		return fmt.Errorf("channel configuration is required")
	}
	if c.Channel.URL == "" {
		return fmt.Errorf("channel URL cannot be empty")
	}
	if c.Channel.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect delay must be positive")
	}
	if c.Channel.ReconnectMax < c.Channel.ReconnectDelay {
		return fmt.Errorf("reconnect max must be at least the initial delay")
	}
	if c.Chat == nil {
		return fmt.Errorf("chat configuration is required")
	}
	if c.Chat.DedupWindow <= 0 {
		return fmt.Errorf("dedup window must be positive")
	}
	if c.Chat.TypingTimeout <= 0 {
		return fmt.Errorf("typing timeout must be positive")
	}
	return nil
}

// LoadFromEnv layers CLINICHAT_* environment variables over the defaults.
// Malformed values are ignored, leaving the default in place.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if path := os.Getenv("CLINICHAT_EVENT_LOG_PATH"); path != "" {
		config.EventLog.Path = path
	}
	if host := os.Getenv("CLINICHAT_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if port := os.Getenv("CLINICHAT_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if readTimeout := os.Getenv("CLINICHAT_HTTP_READ_TIMEOUT"); readTimeout != "" {
		if d, err := time.ParseDuration(readTimeout); err == nil {
			config.HTTP.ReadTimeout = d
		}
	}
	if writeTimeout := os.Getenv("CLINICHAT_HTTP_WRITE_TIMEOUT"); writeTimeout != "" {
		if d, err := time.ParseDuration(writeTimeout); err == nil {
			config.HTTP.WriteTimeout = d
		}
	}
	if url := os.Getenv("CLINICHAT_CHANNEL_URL"); url != "" {
		config.Channel.URL = url
	}
	if delay := os.Getenv("CLINICHAT_RECONNECT_DELAY"); delay != "" {
		if d, err := time.ParseDuration(delay); err == nil {
			config.Channel.ReconnectDelay = d
		}
	}
	if max := os.Getenv("CLINICHAT_RECONNECT_MAX"); max != "" {
		if d, err := time.ParseDuration(max); err == nil {
			config.Channel.ReconnectMax = d
		}
	}
	if window := os.Getenv("CLINICHAT_DEDUP_WINDOW"); window != "" {
		if d, err := time.ParseDuration(window); err == nil {
			config.Chat.DedupWindow = d
		}
	}
	if timeout := os.Getenv("CLINICHAT_TYPING_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Chat.TypingTimeout = d
		}
	}
	if url := os.Getenv("CLINICHAT_IDENTITY_URL"); url != "" {
		config.Chat.IdentityURL = url
	}

	return config
}

// configFile mirrors Config with string durations for JSON parsing.
type configFile struct {
	EventLog *struct {
		Path string `json:"path"`
	} `json:"event_log"`
	HTTP *struct {
		Host         string `json:"host"`
		Port         int    `json:"port"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"http"`
	Channel *struct {
		URL            string `json:"url"`
		ReconnectDelay string `json:"reconnect_delay"`
		ReconnectMax   string `json:"reconnect_max"`
	} `json:"channel"`
	Chat *struct {
		DedupWindow   string `json:"dedup_window"`
		TypingTimeout string `json:"typing_timeout"`
		IdentityURL   string `json:"identity_url"`
	} `json:"chat"`
}

// LoadFromFile layers a JSON config file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	config := DefaultConfig()

	if file.EventLog != nil {
		config.EventLog.Path = file.EventLog.Path
	}
	if file.HTTP != nil {
		if file.HTTP.Host != "" {
			config.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.Port > 0 {
			config.HTTP.Port = file.HTTP.Port
		}
		if file.HTTP.ReadTimeout != "" {
			if d, err := time.ParseDuration(file.HTTP.ReadTimeout); err == nil {
				config.HTTP.ReadTimeout = d
			}
		}
		if file.HTTP.WriteTimeout != "" {
			if d, err := time.ParseDuration(file.HTTP.WriteTimeout); err == nil {
				config.HTTP.WriteTimeout = d
			}
		}
	}
	if file.Channel != nil {
		if file.Channel.URL != "" {
			config.Channel.URL = file.Channel.URL
		}
		if file.Channel.ReconnectDelay != "" {
			if d, err := time.ParseDuration(file.Channel.ReconnectDelay); err == nil {
				config.Channel.ReconnectDelay = d
			}
		}
		if file.Channel.ReconnectMax != "" {
			if d, err := time.ParseDuration(file.Channel.ReconnectMax); err == nil {
				config.Channel.ReconnectMax = d
			}
		}
	}
	if file.Chat != nil {
		if file.Chat.DedupWindow != "" {
			if d, err := time.ParseDuration(file.Chat.DedupWindow); err == nil {
				config.Chat.DedupWindow = d
			}
		}
		if file.Chat.TypingTimeout != "" {
			if d, err := time.ParseDuration(file.Chat.TypingTimeout); err == nil {
				config.Chat.TypingTimeout = d
			}
		}
		if file.Chat.IdentityURL != "" {
			config.Chat.IdentityURL = file.Chat.IdentityURL
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

// Load resolves configuration with precedence: file > environment > defaults.
// A missing or unreadable file falls back to environment and defaults.
func Load(path string) *Config {
	config := LoadFromEnv()

	if path != "" {
		if fileConfig, err := LoadFromFile(path); err == nil {
			config = fileConfig
		}
	}
	return config
}
