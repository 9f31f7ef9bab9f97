package publish

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/camerad/internal/camera"
	"github.com/nerrad567/camerad/internal/infrastructure/influxdb"
	"github.com/nerrad567/camerad/internal/infrastructure/mqtt"
	"github.com/nerrad567/camerad/internal/sensor"
)

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakeMQTT struct {
	mu           sync.Mutex
	disconnected bool
	err          error
	msgs         []published
}

func (f *fakeMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

func (f *fakeMQTT) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.disconnected
}

func (f *fakeMQTT) messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.msgs...)
}

type broadcast struct {
	channel string
	payload any
}

type fakeHub struct {
	mu   sync.Mutex
	sent []broadcast
}

func (f *fakeHub) Broadcast(channel string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, broadcast{channel: channel, payload: payload})
}

func (f *fakeHub) broadcasts() []broadcast {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broadcast(nil), f.sent...)
}

type fakeTelemetry struct {
	mu     sync.Mutex
	frames []influxdb.FrameTelemetry
	losses []string
}

func (f *fakeTelemetry) WriteFrameTelemetry(s influxdb.FrameTelemetry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, s)
}

func (f *fakeTelemetry) WriteFrameLoss(_ int, kind string, _, _ uint64, _ int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.losses = append(f.losses, kind)
}

type fakeSubscriber struct {
	topic   string
	handler mqtt.MessageHandler
}

func (f *fakeSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.topic = topic
	f.handler = handler
	return nil
}

type fakeRegisters struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeRegisters) WriteRegisters(_ context.Context, _ int, _ camera.Opcode, _ bool, _ []sensor.RegWrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

type fakeStatus struct {
	mu sync.Mutex
	st camera.Status
}

func (f *fakeStatus) Status() camera.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st
}

func (f *fakeStatus) set(frames uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.FramesPublished = frames
}

var errBroker = errors.New("broker unavailable")
