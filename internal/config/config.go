// Package config loads fesdql configuration from a file and the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/coregx/fesdql/internal/core"
)

// EnvPrefix is the prefix of environment overrides, e.g. FESDQL_MONGO_HOST.
const EnvPrefix = "FESDQL"

// Section is the key under which the configuration lives in a file.
const Section = "mongo"

// Load reads the configuration. path is an optional yaml, json or toml file; an
// empty path reads the environment and defaults only. The result is verified.
func Load(path string) (core.Config, error) {
	v := New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return core.Config{}, fmt.Errorf("%w: read %s: %w", core.ErrConfig, path, err)
		}
	}

	return Decode(v)
}

// New returns a viper instance with fesdql defaults and environment overrides.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := core.DefaultConfig()
	v.SetDefault(key("host"), def.Host)
	v.SetDefault(key("port"), def.Port)
	v.SetDefault(key("username"), def.Username)
	v.SetDefault(key("passwd"), "")
	v.SetDefault(key("dbname"), "")
	v.SetDefault(key("pool_size"), def.PoolSize)
	v.SetDefault(key("max_per_page"), 0)
	v.SetDefault(key("use_zh"), def.UseZh)

	return v
}

// Decode reads the fesdql section of v into a verified core.Config.
func Decode(v *viper.Viper) (core.Config, error) {
	if err := checkBinds(v); err != nil {
		return core.Config{}, err
	}

	cfg := core.DefaultConfig()
	sub := v.Sub(Section)
	if sub == nil {
		sub = viper.New()
	}

	// environment and default values are not visible through Sub
	for _, k := range []string{"host", "port", "username", "passwd", "dbname", "pool_size", "max_per_page", "use_zh"} {
		sub.Set(k, v.Get(key(k)))
	}

	if err := sub.Unmarshal(&cfg); err != nil {
		return core.Config{}, fmt.Errorf("%w: %w", core.ErrConfig, err)
	}

	if err := cfg.Verify(); err != nil {
		return core.Config{}, err
	}
	return cfg, nil
}

// checkBinds reports bind entries that are not mappings.
func checkBinds(v *viper.Viper) error {
	if !v.IsSet(key("binds")) {
		return nil
	}
	binds, ok := v.Get(key("binds")).(map[string]any)
	if !ok {
		return fmt.Errorf("%w: binds must be a mapping of bind name to connection", core.ErrConfig)
	}
	for name := range binds {
		if !v.IsSet(key("binds", name)) {
			continue
		}
		if _, ok := v.Get(key("binds", name)).(map[string]any); !ok {
			return fmt.Errorf("%w: bind %s must be a mapping", core.ErrConfig, name)
		}
	}
	return nil
}

func key(parts ...string) string {
	return Section + "." + strings.Join(parts, ".")
}
