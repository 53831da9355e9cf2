package config

import (
	"github.com/spf13/viper"
)

// Config is the gateway's full configuration surface, spec.md §6. It is
// loaded from config.yaml (or ./config/config.yaml) with defaults for
// most scalar settings, the same way the teacher's LoadConfig does; the
// radio list, the Redis connection fields and api.shared_secret have no
// default beyond their zero values.
type Config struct {
	Proxy struct {
		ListenAddress   string `mapstructure:"listen_address"`
		ListenPort      int    `mapstructure:"listen_port"`
		BufferSize      int    `mapstructure:"buffer_size"`
		SessionTimeoutS int    `mapstructure:"session_timeout_s"`
		RadioSelection  string `mapstructure:"radio_selection"`
	} `mapstructure:"proxy"`

	Radios []struct {
		Name     string `mapstructure:"name"`
		Hostname string `mapstructure:"hostname"`
		Port     int    `mapstructure:"port"`
		DataPort int    `mapstructure:"data_port"`
		Enabled  bool   `mapstructure:"enabled"`
	} `mapstructure:"radios"`

	Security struct {
		RequireAuthentication bool `mapstructure:"require_authentication"`
	} `mapstructure:"security"`

	Performance struct {
		StatsEnabled   bool `mapstructure:"stats_enabled"`
		StatsIntervalS int  `mapstructure:"stats_interval_s"`
	} `mapstructure:"performance"`

	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Address  string `mapstructure:"address"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		Channel  string `mapstructure:"channel"`
	} `mapstructure:"redis"`

	API struct {
		Enabled      bool   `mapstructure:"enabled"`
		Port         int    `mapstructure:"port"`
		SharedSecret string `mapstructure:"shared_secret"`
		LogRequests  bool   `mapstructure:"log_requests"`
	} `mapstructure:"api"`
}

// LoadConfig reads config.yaml (searching "." then "./config"),
// applying the defaults set below before unmarshalling.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetDefault("proxy.listen_address", "0.0.0.0")
	viper.SetDefault("proxy.listen_port", 1024)
	viper.SetDefault("proxy.buffer_size", 2048)
	viper.SetDefault("proxy.session_timeout_s", 60)
	viper.SetDefault("proxy.radio_selection", "first_available")

	viper.SetDefault("security.require_authentication", false)

	viper.SetDefault("performance.stats_enabled", true)
	viper.SetDefault("performance.stats_interval_s", 60)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.channel", "hpsdr_gateway_sessions")

	viper.SetDefault("api.enabled", true)
	viper.SetDefault("api.port", 8088)
	viper.SetDefault("api.log_requests", false)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
