package core

import (
	"fmt"
	"sort"
	"strings"
)

// Default connection settings.
const (
	DefaultHost     = "127.0.0.1"
	DefaultPort     = 27017
	DefaultUsername = "mongo"
	DefaultPoolSize = 50
)

// BindConfig is the connection of one named bind. Every field except PoolSize
// is required; a zero PoolSize inherits the default bind's.
type BindConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"passwd"`
	DBName   string `mapstructure:"dbname"`
	PoolSize uint64 `mapstructure:"pool_size"`
}

// Config configures a Registry. The top-level connection fields describe the
// default bind.
type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"passwd"`
	DBName   string `mapstructure:"dbname"`
	PoolSize uint64 `mapstructure:"pool_size"`

	Binds map[string]BindConfig `mapstructure:"binds"`

	// MaxPerPage caps per-page values of queries built by sessions. Zero disables the cap.
	MaxPerPage int `mapstructure:"max_per_page"`
	// Message overrides entries of the built-in message table by code.
	Message []Message `mapstructure:"message"`
	// UseZh selects Chinese messages; English otherwise.
	UseZh bool `mapstructure:"use_zh"`
}

// DefaultConfig returns a Config with the default connection settings.
func DefaultConfig() Config {
	return Config{
		Host:     DefaultHost,
		Port:     DefaultPort,
		Username: DefaultUsername,
		PoolSize: DefaultPoolSize,
		UseZh:    true,
	}
}

// Verify checks the default bind and every named bind.
// Missing bind fields are reported together, by their configuration keys.
func (c *Config) Verify() error {
	if c.DBName == "" {
		return fmt.Errorf("%w: dbname is required", ErrConfig)
	}
	if c.MaxPerPage < 0 {
		return fmt.Errorf("%w: max_per_page must not be negative", ErrConfig)
	}

	names := make([]string, 0, len(c.Binds))
	for name := range c.Binds {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if name == "" {
			return fmt.Errorf("%w: bind name must not be empty", ErrConfig)
		}
		if missing := c.Binds[name].missing(); len(missing) > 0 {
			return fmt.Errorf("%w: binds config %s error, missing %s config item",
				ErrConfig, name, strings.Join(missing, " "))
		}
	}
	return nil
}

func (b BindConfig) missing() []string {
	var out []string
	if b.Host == "" {
		out = append(out, "host")
	}
	if b.Port == 0 {
		out = append(out, "port")
	}
	if b.Username == "" {
		out = append(out, "username")
	}
	if b.Password == "" {
		out = append(out, "passwd")
	}
	if b.DBName == "" {
		out = append(out, "dbname")
	}
	return out
}

// connConfig returns the dial settings of the default bind.
func (c *Config) connConfig() ConnConfig {
	return ConnConfig{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		PoolSize: c.PoolSize,
	}
}

// connConfig returns the dial settings of a named bind.
func (b BindConfig) connConfig(defaultPool uint64) ConnConfig {
	pool := b.PoolSize
	if pool == 0 {
		pool = defaultPool
	}
	return ConnConfig{
		Host:     b.Host,
		Port:     b.Port,
		Username: b.Username,
		Password: b.Password,
		PoolSize: pool,
	}
}

// engineKey identifies a Client. Binds that reach the same server with the same
// user share one.
func (c ConnConfig) engineKey() string {
	return fmt.Sprintf("%s_%d_%s", c.Host, c.Port, c.Username)
}
