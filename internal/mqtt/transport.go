//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"zigbee-go-converters/internal/stack"
	"zigbee-go-converters/internal/zcl"
)

// ErrTimeout is returned when the stack does not answer a request in time.
var ErrTimeout = errors.New("stack request timeout")

// DefaultRequestTimeout bounds a request without a context deadline.
const DefaultRequestTimeout = 10 * time.Second

// Topic suffixes below the stack prefix.
const (
	topicRequest  = "request"  // <prefix>/request/<kind>
	topicResponse = "response" // <prefix>/response
	topicEvent    = "event"    // <prefix>/event/<kind>
)

// request is the envelope of a published request.
type request struct {
	ID      string `json:"id"`
	Request any    `json:"request"`
}

// response answers a request with the same ID. Status is the ZCL status
// the device answered with, if any.
type response struct {
	ID         string         `json:"id"`
	Status     uint8          `json:"status,omitempty"`
	Error      string         `json:"error,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Transport implements stack.Stack over the MQTT topics of an external
// Zigbee stack. Requests are correlated with their responses by ID.
type Transport struct {
	client  Client
	prefix  string
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]chan response

	onInterview func(stack.DeviceInterviewEvent)
	onAnnounce  func(stack.DeviceAnnounceEvent)
	onLeft      func(stack.DeviceLeftEvent)
	onReport    func(stack.AttributeReportEvent)
	onCommand   func(stack.ClusterCommandEvent)
}

// NewTransport subscribes to the stack's response and event topics.
func NewTransport(client Client, prefix string, logger *slog.Logger) *Transport {
	t := &Transport{
		client:  client,
		prefix:  strings.TrimSuffix(prefix, "/"),
		timeout: DefaultRequestTimeout,
		logger:  logger.With("component", "mqtt-stack"),
		pending: make(map[string]chan response),
	}
	client.Subscribe(t.prefix+"/"+topicResponse, t.handleResponse)
	client.Subscribe(t.prefix+"/"+topicEvent+"/+", t.handleEvent)
	return t
}

// SetTimeout changes the request timeout.
func (t *Transport) SetTimeout(d time.Duration) { t.timeout = d }

func (t *Transport) request(ctx context.Context, kind string, req any) (response, error) {
	id := uuid.NewString()
	ch := make(chan response, 1)
	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	payload, err := json.Marshal(request{ID: id, Request: req})
	if err != nil {
		return response{}, fmt.Errorf("%s request: %w", kind, err)
	}
	t.client.Publish(t.prefix+"/"+topicRequest+"/"+kind, payload, false)

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		if resp.Status != zcl.StatusSuccess {
			return resp, fmt.Errorf("%s: %w", kind, &zcl.StatusError{Status: resp.Status})
		}
		if resp.Error != "" {
			return resp, fmt.Errorf("%s: %s", kind, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return response{}, ctx.Err()
	case <-timer.C:
		return response{}, fmt.Errorf("%s: %w", kind, ErrTimeout)
	}
}

func (t *Transport) handleResponse(_ string, payload []byte) {
	var resp response
	if err := json.Unmarshal(payload, &resp); err != nil {
		t.logger.Warn("invalid stack response", "err", err)
		return
	}
	t.mu.Lock()
	ch, ok := t.pending[resp.ID]
	t.mu.Unlock()
	if !ok {
		t.logger.Debug("response without request", "id", resp.ID)
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

func (t *Transport) handleEvent(topic string, payload []byte) {
	kind := topic[strings.LastIndexByte(topic, '/')+1:]
	var err error
	switch kind {
	case "interview":
		err = dispatch(payload, t.onInterview)
	case "announce":
		err = dispatch(payload, t.onAnnounce)
	case "left":
		err = dispatch(payload, t.onLeft)
	case "attribute":
		err = dispatch(payload, t.onReport)
	case "command":
		err = dispatch(payload, t.onCommand)
	default:
		t.logger.Debug("unknown stack event", "topic", topic)
		return
	}
	if err != nil {
		t.logger.Warn("invalid stack event", "kind", kind, "err", err)
	}
}

func dispatch[T any](payload []byte, handler func(T)) error {
	var evt T
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}
	if handler != nil {
		handler(evt)
	}
	return nil
}

// Read implements stack.Stack.
func (t *Transport) Read(ctx context.Context, req stack.ReadRequest) (map[string]any, error) {
	resp, err := t.request(ctx, "read", req)
	if err != nil {
		return nil, err
	}
	return resp.Attributes, nil
}

// Write implements stack.Stack.
func (t *Transport) Write(ctx context.Context, req stack.WriteRequest) error {
	_, err := t.request(ctx, "write", req)
	return err
}

// Command implements stack.Stack.
func (t *Transport) Command(ctx context.Context, req stack.CommandRequest) error {
	_, err := t.request(ctx, "command", req)
	return err
}

// ConfigureReporting implements stack.Stack.
func (t *Transport) ConfigureReporting(ctx context.Context, req stack.ReportingRequest) error {
	_, err := t.request(ctx, "reporting", req)
	return err
}

// Bind implements stack.Stack.
func (t *Transport) Bind(ctx context.Context, req stack.BindRequest) error {
	_, err := t.request(ctx, "bind", req)
	return err
}

func (t *Transport) OnDeviceInterview(h func(stack.DeviceInterviewEvent)) { t.onInterview = h }
func (t *Transport) OnDeviceAnnounce(h func(stack.DeviceAnnounceEvent))   { t.onAnnounce = h }
func (t *Transport) OnDeviceLeft(h func(stack.DeviceLeftEvent))           { t.onLeft = h }
func (t *Transport) OnAttributeReport(h func(stack.AttributeReportEvent)) { t.onReport = h }
func (t *Transport) OnClusterCommand(h func(stack.ClusterCommandEvent))   { t.onCommand = h }

// Close fails pending requests.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, ch := range t.pending {
		select {
		case ch <- response{ID: id, Error: "transport closed"}:
		default:
		}
	}
	return nil
}
