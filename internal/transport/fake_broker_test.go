package transport

import (
	"errors"
	"strings"
	"sync"

	mqttcommon "smartgrid-monitor/common/mqtt"
)

type published struct {
	topic   string
	payload []byte
}

// fakeBroker 进程内的 MQTT 替身，支持单层通配符 +
type fakeBroker struct {
	mu       sync.Mutex
	subs     map[string]mqttcommon.MessageHandler
	messages []published
	failures int // 剩余需要失败的 Publish 次数
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{subs: make(map[string]mqttcommon.MessageHandler)}
}

func (b *fakeBroker) QoS() byte { return 1 }

func (b *fakeBroker) Publish(topic string, _ byte, _ bool, payload []byte) error {
	b.mu.Lock()
	if b.failures > 0 {
		b.failures--
		b.mu.Unlock()
		return errors.New("broker unreachable")
	}
	b.messages = append(b.messages, published{topic: topic, payload: payload})
	var handlers []mqttcommon.MessageHandler
	for filter, h := range b.subs {
		if topicMatches(filter, topic) {
			handlers = append(handlers, h)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		_ = h(topic, payload)
	}
	return nil
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler mqttcommon.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = handler
	return nil
}

func (b *fakeBroker) Unsubscribe(topics ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		delete(b.subs, t)
	}
	return nil
}

func (b *fakeBroker) subscribed(filter string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subs[filter]
	return ok
}

func (b *fakeBroker) sent() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.messages...)
}

func topicMatches(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	if len(f) != len(t) {
		return false
	}
	for i := range f {
		if f[i] != "+" && f[i] != t[i] {
			return false
		}
	}
	return true
}
