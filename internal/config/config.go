package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"smartgrid-monitor/common/config"
)

// 存储后端
const (
	StorageFile     = "file"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// 遥测传输方式
const (
	TransportHTTP  = "http"
	TransportMQTT  = "mqtt"
	TransportRedis = "redis"
)

// 维修完成通知方式
const (
	NotifierRedis = "redis"
	NotifierMQTT  = "mqtt"
)

// Config 风电场监控配置（grid-monitor / wind-turbine / grid-simulator 共用）
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// 监控端配置
	Monitor struct {
		Addr           string        // HTTP 接入地址，如 ":8787"
		EngineerCount  int           // 维修工程师数量（并发维修上限）
		QueueCapacity  int           // 接入队列容量（满时反压）
		EnqueueTimeout time.Duration // 接入端入队最长等待时间
		StorageBackend string        // file / redis / postgres
		DataDir        string        // file 后端的分区目录
		Ingress        struct {
			MQTT  bool // 是否同时订阅 MQTT 遥测
			Redis bool // 是否同时消费 Redis Streams 遥测
		}
	}

	// 风机端配置
	Turbine struct {
		Count          int
		UploadInterval time.Duration
		MinTimeToFail  time.Duration
		MaxTimeToFail  time.Duration
		MonitorURL     string        // grid-monitor 地址
		Transport      string        // http / mqtt / redis
		PublishTimeout time.Duration // 单次上报超时
	}

	// 维修配置
	Repair struct {
		Notifier    string // redis / mqtt（跨进程部署时的维修完成通知）
		MinDuration time.Duration
		MaxDuration time.Duration
	}

	// MQTT 主题（%d 为风机编号）
	Topics struct {
		Metrics       string
		MetricsFilter string
		Repairs       string
		RepairsFilter string
	}

	// Redis 键与流
	Streams struct {
		Telemetry     string // 遥测接入流
		ConsumerGroup string
		ConsumerName  string
		MetricsKey    string // redis 存储后端的分区流键，%d 为风机编号
		RepairChannel string // 维修通知频道，%d 为风机编号
		RepairPattern string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "smartgrid")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = 4
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "smartgrid")
	cfg.MQTT.QoS = 1
	cfg.MQTT.ConnectTimeout = 10 * time.Second
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Monitor.Addr = getEnv("MONITOR_ADDR", ":8787")
	cfg.Monitor.EngineerCount = getEnvInt("ENGINEER_COUNT", 5)
	cfg.Monitor.QueueCapacity = getEnvInt("QUEUE_CAPACITY", 1024)
	cfg.Monitor.EnqueueTimeout = getEnvDuration("ENQUEUE_TIMEOUT", 10*time.Second)
	cfg.Monitor.StorageBackend = getEnv("STORAGE_BACKEND", StorageFile)
	cfg.Monitor.DataDir = getEnv("DATA_DIR", "data/metrics_data")
	cfg.Monitor.Ingress.MQTT = getEnvBool("INGRESS_MQTT", false)
	cfg.Monitor.Ingress.Redis = getEnvBool("INGRESS_REDIS", false)

	cfg.Turbine.Count = getEnvInt("TURBINE_COUNT", 5)
	cfg.Turbine.UploadInterval = getEnvDuration("UPLOAD_INTERVAL", time.Second)
	cfg.Turbine.MinTimeToFail = getEnvDuration("MIN_TIME_TO_FAIL", time.Second)
	cfg.Turbine.MaxTimeToFail = getEnvDuration("MAX_TIME_TO_FAIL", 30*time.Second)
	cfg.Turbine.MonitorURL = getEnv("GRID_MONITOR_URL", "http://grid-monitor-app:8787")
	cfg.Turbine.Transport = getEnv("TELEMETRY_TRANSPORT", TransportHTTP)
	cfg.Turbine.PublishTimeout = getEnvDuration("PUBLISH_TIMEOUT", 30*time.Second)

	cfg.Repair.Notifier = getEnv("REPAIR_NOTIFIER", NotifierRedis)
	cfg.Repair.MinDuration = getEnvDuration("MIN_TIME_TO_REPAIR", time.Second)
	cfg.Repair.MaxDuration = getEnvDuration("MAX_TIME_TO_REPAIR", 5*time.Second)

	cfg.Topics.Metrics = "turbine/%d/metrics"
	cfg.Topics.MetricsFilter = "turbine/+/metrics"
	cfg.Topics.Repairs = "turbine/%d/repairs"
	cfg.Topics.RepairsFilter = "turbine/+/repairs"

	cfg.Streams.Telemetry = getEnv("TELEMETRY_STREAM", "turbine:metrics:stream")
	cfg.Streams.ConsumerGroup = getEnv("TELEMETRY_CONSUMER_GROUP", "grid-monitor")
	cfg.Streams.ConsumerName = getEnv("TELEMETRY_CONSUMER_NAME", "grid-monitor-1")
	cfg.Streams.MetricsKey = "turbine:%d:metrics"
	cfg.Streams.RepairChannel = "turbine:%d:repairs"
	cfg.Streams.RepairPattern = "turbine:*:repairs"

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error

	if c.Monitor.EngineerCount < 1 {
		errs = append(errs, fmt.Errorf("engineer count must be at least 1, got %d", c.Monitor.EngineerCount))
	}
	if c.Monitor.QueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("queue capacity must be at least 1, got %d", c.Monitor.QueueCapacity))
	}
	if c.Turbine.Count < 0 {
		errs = append(errs, fmt.Errorf("turbine count must not be negative, got %d", c.Turbine.Count))
	}
	if c.Turbine.UploadInterval <= 0 {
		errs = append(errs, fmt.Errorf("upload interval must be positive, got %s", c.Turbine.UploadInterval))
	}
	if c.Turbine.MinTimeToFail <= 0 || c.Turbine.MinTimeToFail > c.Turbine.MaxTimeToFail {
		errs = append(errs, fmt.Errorf("invalid time to fail range [%s, %s]", c.Turbine.MinTimeToFail, c.Turbine.MaxTimeToFail))
	}
	if c.Repair.MinDuration <= 0 || c.Repair.MinDuration > c.Repair.MaxDuration {
		errs = append(errs, fmt.Errorf("invalid time to repair range [%s, %s]", c.Repair.MinDuration, c.Repair.MaxDuration))
	}
	if !oneOf(c.Monitor.StorageBackend, StorageFile, StorageRedis, StoragePostgres) {
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Monitor.StorageBackend))
	}
	if !oneOf(c.Turbine.Transport, TransportHTTP, TransportMQTT, TransportRedis) {
		errs = append(errs, fmt.Errorf("unknown telemetry transport %q", c.Turbine.Transport))
	}
	if !oneOf(c.Repair.Notifier, NotifierRedis, NotifierMQTT) {
		errs = append(errs, fmt.Errorf("unknown repair notifier %q", c.Repair.Notifier))
	}

	return errors.Join(errs...)
}

func oneOf(value string, options ...string) bool {
	for _, o := range options {
		if value == o {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

// getEnvDuration 支持 "1.5s" 形式，也支持按秒计的纯数字 "1.5"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}
