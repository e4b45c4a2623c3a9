// internal/pkg/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是 promotion 服务的全部配置。
// 加载顺序：默认值 -> yaml 文件 -> 环境变量，后者覆盖前者。
type Config struct {
	Service struct {
		Name   string `yaml:"name"`
		Port   int    `yaml:"port"`
		Pretty bool   `yaml:"prettyLog"`
		Level  string `yaml:"logLevel"`
	} `yaml:"service"`

	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`

	Redis struct {
		Addrs string `yaml:"addrs"`
	} `yaml:"redis"`

	Kafka struct {
		Brokers       string `yaml:"brokers"`
		GrantTopic    string `yaml:"grantTopic"`
		ConsumerGroup string `yaml:"consumerGroup"`
	} `yaml:"kafka"`

	Lock struct {
		// Provider 可选 redis / zookeeper
		Provider    string        `yaml:"provider"`
		WaitTimeout time.Duration `yaml:"waitTimeout"`
		LeaseTime   time.Duration `yaml:"leaseTime"`
		ZkServers   string        `yaml:"zkServers"`
	} `yaml:"lock"`

	Nacos struct {
		ServerAddrs string `yaml:"serverAddrs"`
		Namespace   string `yaml:"namespace"`
		Group       string `yaml:"group"`
	} `yaml:"nacos"`

	Jaeger struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"jaeger"`

	Solver struct {
		Workers int           `yaml:"workers"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"solver"`
}

// Load 读取配置文件（可以不存在）并应用环境变量覆盖。
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Service.Name = "promotion-service"
	cfg.Service.Port = 8090
	cfg.Service.Level = "info"
	cfg.MySQL.DSN = "root:root@tcp(localhost:3306)/promotion?charset=utf8mb4&parseTime=True&loc=Local"
	cfg.Redis.Addrs = "localhost:6379"
	cfg.Kafka.Brokers = "localhost:9092"
	cfg.Kafka.GrantTopic = "coupon-grant-topic"
	cfg.Kafka.ConsumerGroup = "coupon-grant-consumer-group"
	cfg.Lock.Provider = "redis"
	cfg.Lock.WaitTimeout = 1 * time.Second
	cfg.Lock.LeaseTime = 30 * time.Second
	cfg.Lock.ZkServers = "localhost:2181"
	cfg.Nacos.ServerAddrs = "localhost:8848"
	cfg.Nacos.Group = "DEFAULT_GROUP"
	cfg.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Solver.Workers = 8
	cfg.Solver.Timeout = 2 * time.Second
	return cfg
}

func applyEnv(cfg *Config) {
	cfg.MySQL.DSN = getEnv("MYSQL_DSN", cfg.MySQL.DSN)
	cfg.Redis.Addrs = getEnv("REDIS_ADDRS", cfg.Redis.Addrs)
	cfg.Kafka.Brokers = getEnv("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", cfg.Nacos.ServerAddrs)
	cfg.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Nacos.Namespace)
	cfg.Nacos.Group = getEnv("NACOS_GROUP", cfg.Nacos.Group)
	cfg.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Jaeger.Endpoint)
	cfg.Lock.Provider = getEnv("LOCK_PROVIDER", cfg.Lock.Provider)
	cfg.Lock.ZkServers = getEnv("ZK_SERVERS", cfg.Lock.ZkServers)
	if v, ok := os.LookupEnv("SERVICE_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Service.Port = port
		}
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
