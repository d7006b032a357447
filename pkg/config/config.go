package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Presence PresenceConfig `mapstructure:"presence"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Version  string `mapstructure:"version"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPConfig `mapstructure:"http"`
}

// HTTPConfig HTTP服务配置
type HTTPConfig struct {
	Addr    string `mapstructure:"addr"`
	Timeout string `mapstructure:"timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	MongoDB MongoDBConfig `mapstructure:"mongodb"`
}

// MongoDBConfig MongoDB配置
type MongoDBConfig struct {
	URI    string `mapstructure:"uri"`
	DBName string `mapstructure:"db_name"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// PresenceConfig 在线状态服务配置
type PresenceConfig struct {
	HeartbeatInterval int   `mapstructure:"heartbeat_interval"` // 心跳间隔（秒）
	ReadLimit         int64 `mapstructure:"read_limit"`         // 单条消息最大字节数
	WriteTimeout      int   `mapstructure:"write_timeout"`      // 写超时（秒）
}

// HeartbeatIntervalDuration 心跳间隔时长
func (p PresenceConfig) HeartbeatIntervalDuration() time.Duration {
	return time.Duration(p.HeartbeatInterval) * time.Second
}

// WriteTimeoutDuration 写超时时长
func (p PresenceConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(p.WriteTimeout) * time.Second
}

// LoadConfig 加载配置：默认值 < config.yaml < 环境变量
func LoadConfig(serviceName string) *Config {
	v := viper.New()

	setDefaults(v, serviceName)

	// 可选的配置文件
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // 文件不存在时使用默认值

	// 环境变量覆盖，如 SERVER_HTTP_ADDR、DATABASE_MONGODB_URI
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// setDefaults 设置默认配置
func setDefaults(v *viper.Viper, serviceName string) {
	v.SetDefault("app.name", serviceName)
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("server.http.addr", ":21010")
	v.SetDefault("server.http.timeout", "30s")

	v.SetDefault("database.mongodb.uri", "mongodb://localhost:27017")
	v.SetDefault("database.mongodb.db_name", serviceName+"DB")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "presence_events")

	v.SetDefault("presence.heartbeat_interval", 30)
	v.SetDefault("presence.read_limit", 4096)
	v.SetDefault("presence.write_timeout", 10)
}
