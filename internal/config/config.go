package config

import "time"

const (
	BackendOllama    = "ollama"
	BackendAnthropic = "anthropic"
	BackendOpenAI    = "openai"
)

// Config holds application configuration
type Config struct {
	ListenAddr string // HTTP listen address
	Backend    string // NLU backend (ollama|anthropic|openai)
	Model      string // Model specification (e.g., "llama3:latest" for ollama)
	DBPath     string // SQLite database path
	Debug      bool

	TaxRate float64 // Sales tax rate applied to every order (e.g., 0.08)

	SessionTTL   time.Duration // Idle sessions older than this are reaped; 0 disables reaping
	PingInterval time.Duration // Heartbeat ping interval for realtime clients
	PongTimeout  time.Duration // Clients silent longer than this are disconnected
}

// Default returns the configuration used when no flags override it.
func Default() Config {
	return Config{
		ListenAddr:   ":8080",
		Backend:      BackendOllama,
		Model:        "llama3:latest",
		DBPath:       "voiceorder.db",
		TaxRate:      0.08,
		SessionTTL:   30 * time.Minute,
		PingInterval: 10 * time.Second,
		PongTimeout:  30 * time.Second,
	}
}
