package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Auth      AuthConfig
	Storage   StorageConfig
	Chat      ChatConfig
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type TransportConfig struct {
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	PingInterval   time.Duration `mapstructure:"pingInterval"`
	MaxMissedPings int           `mapstructure:"maxMissedPings"`
}

type AuthConfig struct {
	// TokenSecret signs the auth tokens handed out after login.
	TokenSecret   string        `mapstructure:"tokenSecret"`
	TokenValidity time.Duration `mapstructure:"tokenValidity"`
}

type StorageConfig struct {
	StatePath    string `mapstructure:"statePath"`
	DatabasePath string `mapstructure:"databasePath"`
}

type ChatConfig struct {
	// Operators identifies sessions with full management rights.
	Operators []string `mapstructure:"operators"`
	// GuestNames is the pool random guest identities are drawn from.
	GuestNames []string `mapstructure:"guestNames"`
	// MaxConnectionsPerSession cycles out the oldest connection when a
	// session exceeds this many simultaneous attachments. 0 disables.
	MaxConnectionsPerSession int `mapstructure:"maxConnectionsPerSession"`
	// EnabledPlugins is the default plugin set for new rooms.
	EnabledPlugins []string `mapstructure:"enabledPlugins"`
}

// IsOP reports whether the given session identifier is an operator.
func (c ChatConfig) IsOP(identifier string) bool {
	for _, op := range c.Operators {
		if op == identifier {
			return true
		}
	}
	return false
}
