package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	rediscommon "smartgrid-monitor/common/redis"
	"smartgrid-monitor/internal/models"

	"go.uber.org/zap"
)

// ErrNoListener 维修通知发出时没有任何风机进程在监听
var ErrNoListener = errors.New("no repair listener")

// RepairTarget 接收维修完成通知的一端（风机注册表）
type RepairTarget interface {
	NotifyRepaired(ctx context.Context, ticket models.RepairTicket) error
}

// DefaultDeliverTimeout 单条维修通知转交本地风机的最长等待时间
const DefaultDeliverTimeout = 10 * time.Second

// ListenerOption 维修通知监听端可选项
type ListenerOption func(*noticeRouter)

// WithDeliverTimeout 单条通知转交本地风机的最长等待时间
func WithDeliverTimeout(d time.Duration) ListenerOption {
	return func(r *noticeRouter) {
		r.timeout = d
	}
}

// noticeRouter 每条通知独立转交，某台风机迟迟不接收不会阻塞其它风机的通知
type noticeRouter struct {
	target  RepairTarget
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func newNoticeRouter(target RepairTarget, logger *zap.Logger, opts []ListenerOption) *noticeRouter {
	r := &noticeRouter{target: target, timeout: DefaultDeliverTimeout, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *noticeRouter) route(ctx context.Context, ticket models.RepairTicket) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		dctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		if err := r.target.NotifyRepaired(dctx, ticket); err != nil {
			r.logger.Warn("Failed to apply repair notice",
				zap.String("ticket_id", ticket.TicketID),
				zap.Int("turbine_number", ticket.TurbineNumber),
				zap.Error(err),
			)
		}
	}()
}

// wait 等待已转交的通知全部结束
func (r *noticeRouter) wait() {
	r.wg.Wait()
}

func decodeTicket(payload []byte) (models.RepairTicket, error) {
	var ticket models.RepairTicket
	if err := json.Unmarshal(payload, &ticket); err != nil {
		return ticket, fmt.Errorf("failed to decode repair ticket: %w", err)
	}
	if ticket.TurbineNumber < 1 {
		return ticket, fmt.Errorf("repair ticket %s has invalid turbine number %d", ticket.TicketID, ticket.TurbineNumber)
	}
	return ticket, nil
}

// RedisRepairNotifier 维修完成后发布到 turbine:{n}:repairs
type RedisRepairNotifier struct {
	client        *rediscommon.Client
	channelFormat string
}

// NewRedisRepairNotifier channelFormat 形如 "turbine:%d:repairs"
func NewRedisRepairNotifier(client *rediscommon.Client, channelFormat string) *RedisRepairNotifier {
	return &RedisRepairNotifier{client: client, channelFormat: channelFormat}
}

// NotifyRepaired 发布维修完成通知；无订阅者时返回 ErrNoListener 以便调度端重试
func (n *RedisRepairNotifier) NotifyRepaired(ctx context.Context, ticket models.RepairTicket) error {
	channel := fmt.Sprintf(n.channelFormat, ticket.TurbineNumber)
	receivers, err := rediscommon.PublishJSON(ctx, n.client, channel, ticket)
	if err != nil {
		return err
	}
	if receivers == 0 {
		return fmt.Errorf("%w on %s", ErrNoListener, channel)
	}
	return nil
}

// RedisRepairListener 按模式订阅维修通知并转交本地风机
type RedisRepairListener struct {
	client  *rediscommon.Client
	pattern string
	router  *noticeRouter
	logger  *zap.Logger
	ready   chan struct{}
}

// NewRedisRepairListener pattern 形如 "turbine:*:repairs"
func NewRedisRepairListener(client *rediscommon.Client, pattern string, target RepairTarget, logger *zap.Logger, opts ...ListenerOption) *RedisRepairListener {
	return &RedisRepairListener{
		client:  client,
		pattern: pattern,
		router:  newNoticeRouter(target, logger, opts),
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Ready 订阅生效后关闭
func (l *RedisRepairListener) Ready() <-chan struct{} {
	return l.ready
}

// Run 监听直到 ctx 结束
func (l *RedisRepairListener) Run(ctx context.Context) error {
	ps, err := rediscommon.PSubscribe(ctx, l.client, l.pattern)
	if err != nil {
		return err
	}
	defer ps.Close()
	defer l.router.wait()

	close(l.ready)
	l.logger.Info("Redis repair listener started", zap.String("pattern", l.pattern))

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			l.deliver(ctx, msg.Channel, []byte(msg.Payload))
		}
	}
}

func (l *RedisRepairListener) deliver(ctx context.Context, channel string, payload []byte) {
	ticket, err := decodeTicket(payload)
	if err != nil {
		l.logger.Warn("Dropping repair notice", zap.String("channel", channel), zap.Error(err))
		return
	}
	l.router.route(ctx, ticket)
}

// MQTTRepairNotifier 维修完成后发布到 turbine/{n}/repairs
type MQTTRepairNotifier struct {
	client      MQTTClient
	topicFormat string
}

// NewMQTTRepairNotifier topicFormat 形如 "turbine/%d/repairs"
func NewMQTTRepairNotifier(client MQTTClient, topicFormat string) *MQTTRepairNotifier {
	return &MQTTRepairNotifier{client: client, topicFormat: topicFormat}
}

// NotifyRepaired 发布维修完成通知
func (n *MQTTRepairNotifier) NotifyRepaired(_ context.Context, ticket models.RepairTicket) error {
	payload, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("failed to marshal repair ticket: %w", err)
	}
	return n.client.Publish(fmt.Sprintf(n.topicFormat, ticket.TurbineNumber), n.client.QoS(), false, payload)
}

// MQTTRepairListener 订阅 turbine/+/repairs 并转交本地风机
type MQTTRepairListener struct {
	client MQTTClient
	filter string
	router *noticeRouter
	logger *zap.Logger
}

// NewMQTTRepairListener filter 形如 "turbine/+/repairs"
func NewMQTTRepairListener(client MQTTClient, filter string, target RepairTarget, logger *zap.Logger, opts ...ListenerOption) *MQTTRepairListener {
	return &MQTTRepairListener{
		client: client,
		filter: filter,
		router: newNoticeRouter(target, logger, opts),
		logger: logger,
	}
}

// Run 订阅直到 ctx 结束
func (l *MQTTRepairListener) Run(ctx context.Context) error {
	err := l.client.Subscribe(l.filter, l.client.QoS(), func(topic string, payload []byte) error {
		ticket, err := decodeTicket(payload)
		if err != nil {
			return err
		}
		l.router.route(ctx, ticket)
		return nil
	})
	if err != nil {
		return err
	}
	l.logger.Info("MQTT repair listener started", zap.String("filter", l.filter))

	<-ctx.Done()
	if err := l.client.Unsubscribe(l.filter); err != nil {
		l.logger.Warn("Failed to unsubscribe repairs", zap.Error(err))
	}
	l.router.wait()
	return nil
}
