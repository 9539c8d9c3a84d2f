package service

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	"smartgrid-monitor/common/database"
	mqttcommon "smartgrid-monitor/common/mqtt"
	rediscommon "smartgrid-monitor/common/redis"
	"smartgrid-monitor/internal/config"
	"smartgrid-monitor/internal/monitor"
	"smartgrid-monitor/internal/repository"

	"go.uber.org/zap"
)

// resources 按需建立的外部连接，由所属服务统一关闭
type resources struct {
	cfg    *config.Config
	logger *zap.Logger

	redis *rediscommon.Client
	db    *sql.DB
	mqtt  *mqttcommon.Client
	store monitor.Store
}

func newResources(cfg *config.Config, logger *zap.Logger) *resources {
	return &resources{cfg: cfg, logger: logger}
}

func (r *resources) redisClient(ctx context.Context) (*rediscommon.Client, error) {
	if r.redis != nil {
		return r.redis, nil
	}
	client, err := rediscommon.Connect(ctx, &r.cfg.Redis)
	if err != nil {
		return nil, err
	}
	r.redis = client
	return client, nil
}

func (r *resources) database(ctx context.Context) (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}
	db, err := database.NewPostgresDB(ctx, &r.cfg.Database)
	if err != nil {
		return nil, err
	}
	r.db = db
	return db, nil
}

// mqttClient 每个进程使用不同的 client id，避免 broker 互踢
func (r *resources) mqttClient(role string) (*mqttcommon.Client, error) {
	if r.mqtt != nil {
		return r.mqtt, nil
	}
	cfg := r.cfg.MQTT
	cfg.ClientID = fmt.Sprintf("%s-%s", cfg.ClientID, role)
	client, err := mqttcommon.NewClient(&cfg, r.logger)
	if err != nil {
		return nil, err
	}
	r.mqtt = client
	return client, nil
}

// openStore 按配置打开遥测存储
func (r *resources) openStore(ctx context.Context) (monitor.Store, error) {
	var store monitor.Store
	switch r.cfg.Monitor.StorageBackend {
	case config.StorageRedis:
		client, err := r.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		store = repository.NewRedisStore(client, r.cfg.Streams.MetricsKey, r.logger)
	case config.StoragePostgres:
		db, err := r.database(ctx)
		if err != nil {
			return nil, err
		}
		pg := repository.NewPostgresStore(db, r.logger)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		store = pg
	default:
		fs, err := repository.NewFileStore(r.cfg.Monitor.DataDir, r.logger)
		if err != nil {
			return nil, err
		}
		store = fs
	}
	r.store = store
	return store, nil
}

func (r *resources) close() {
	if c, ok := r.store.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			r.logger.Error("Failed to close store", zap.Error(err))
		}
	}
	if r.mqtt != nil {
		r.mqtt.Disconnect()
	}
	if err := rediscommon.Close(r.redis); err != nil {
		r.logger.Error("Failed to close redis", zap.Error(err))
	}
	if r.db != nil {
		if err := database.Close(r.db); err != nil {
			r.logger.Error("Failed to close database", zap.Error(err))
		}
	}
}

func newRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
