package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Session  SessionConfig   `mapstructure:"session"`
	Machines []MachineConfig `mapstructure:"machines"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
	Namespace      string `mapstructure:"namespace"`
}

type SessionConfig struct {
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	ReapInterval time.Duration `mapstructure:"reap_interval"`
	// Heartbeat is how often clients must send something, 0 disables the deadline
	Heartbeat time.Duration `mapstructure:"heartbeat"`
}

// MachineConfig 启动时创建的机器
type MachineConfig struct {
	ID       string `mapstructure:"id"`
	Location string `mapstructure:"location"`
	Count    uint   `mapstructure:"count"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.metrics_address", ":9090")
	v.SetDefault("server.namespace", "gumball")
	v.SetDefault("session.idle_timeout", time.Minute)
	v.SetDefault("session.reap_interval", 10*time.Second)
	v.SetDefault("session.heartbeat", 30*time.Second)
}

// LoadConfig reads config.yaml from path. A missing file is not an error,
// defaults and GUMBALL_* environment variables still apply.
func LoadConfig(path string) (config *Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	setDefaults(v)
	v.SetEnvPrefix("gumball")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	err = v.Unmarshal(&config)
	return
}
