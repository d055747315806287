package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Typing   TypingConfig   `mapstructure:"typing"`
	Fallback FallbackConfig `mapstructure:"fallback"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Session  SessionConfig  `mapstructure:"session"`
	Export   ExportConfig   `mapstructure:"export"`
	Handover HandoverConfig `mapstructure:"handover"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

// BackendConfig 外部聊天后端配置
type BackendConfig struct {
	Provider     string        `mapstructure:"provider"` // "http", "openai", "doubao" or "qwen"
	URL          string        `mapstructure:"url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	APIKey       string        `mapstructure:"api_key"`
	Model        string        `mapstructure:"model"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float32       `mapstructure:"temperature"`
	TopP         float32       `mapstructure:"top_p"`
}

type TypingConfig struct {
	Delay time.Duration `mapstructure:"delay"`
}

type FallbackConfig struct {
	Responses []string `mapstructure:"responses"`
}

type ChatConfig struct {
	DefaultTitle    string   `mapstructure:"default_title"`
	Greeting        string   `mapstructure:"greeting"`
	TransferMessage string   `mapstructure:"transfer_message"`
	EndMessage      string   `mapstructure:"end_message"`
	PickupMessage   string   `mapstructure:"pickup_message"`
	QuickReplies    []string `mapstructure:"quick_replies"`
}

type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type ExportConfig struct {
	Format string `mapstructure:"format"`
	Dir    string `mapstructure:"dir"`
}

type HandoverConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	ProviderHTTP   = "http"
	ProviderOpenAI = "openai"
	ProviderDoubao = "doubao"
	ProviderQwen   = "qwen"
)

var cfg *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	// 0 表示不限制，SSE长连接会自己清除写超时
	v.SetDefault("server.write_timeout", time.Duration(0))
	v.SetDefault("server.max_header_bytes", 1<<20)

	v.SetDefault("backend.provider", ProviderHTTP)
	v.SetDefault("backend.url", "http://localhost:5000")
	v.SetDefault("backend.timeout", 5*time.Second)
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.model", "gpt-4o-mini")
	v.SetDefault("backend.system_prompt", "")
	v.SetDefault("backend.max_tokens", 0)
	v.SetDefault("backend.temperature", float32(0))
	v.SetDefault("backend.top_p", float32(0))

	v.SetDefault("typing.delay", time.Second)
	v.SetDefault("fallback.responses", []string{})

	v.SetDefault("chat.default_title", "New Chat")
	v.SetDefault("chat.greeting", "Hello! I'm your OHHO Software support assistant. How can I help you today?")
	v.SetDefault("chat.transfer_message", "I'm connecting you with a human agent. Please hold on while I transfer your conversation...")
	v.SetDefault("chat.end_message", "Thank you for contacting OHHO Software support. Your session has been archived. Have a great day!")
	v.SetDefault("chat.pickup_message", "A support agent has joined the conversation.")
	v.SetDefault("chat.quick_replies", []string{"Hello!", "Thank you", "Can you help me with...", "I need support", "Schedule a call"})

	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.cleanup_interval", 10*time.Minute)

	v.SetDefault("export.format", "json")
	v.SetDefault("export.dir", "")

	v.SetDefault("handover.url", "")
	v.SetDefault("handover.timeout", 10*time.Second)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Authorization"})
	v.SetDefault("cors.exposed_headers", []string{"Content-Disposition"})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 43200)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load 加载配置：配置文件（可选）、.env 文件，以及 CHAT_* 环境变量
// 例如 CHAT_BACKEND_URL
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", configPath, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config %s: %w", configPath, err)
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	cfg = c
	return c, nil
}

func (c *Config) Validate() error {
	switch c.Backend.Provider {
	case ProviderHTTP, ProviderOpenAI, ProviderDoubao, ProviderQwen:
	default:
		return fmt.Errorf("backend.provider must be one of %q, %q, %q, %q, got %q",
			ProviderHTTP, ProviderOpenAI, ProviderDoubao, ProviderQwen, c.Backend.Provider)
	}
	if (c.Backend.Provider == ProviderHTTP || c.Backend.Provider == ProviderQwen) && c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required for provider %q", c.Backend.Provider)
	}
	if c.Backend.Timeout <= 0 {
		return errors.New("backend.timeout must be positive")
	}
	if c.Typing.Delay < 0 {
		return errors.New("typing.delay must not be negative")
	}
	// 间隔或TTL为0表示不清理
	if c.Session.CleanupInterval < 0 || c.Session.TTL < 0 {
		return errors.New("session.cleanup_interval and session.ttl must not be negative")
	}
	if c.Server.WriteTimeout < 0 {
		return errors.New("server.write_timeout must not be negative")
	}
	return nil
}

func Get() *Config {
	return cfg
}
