package hub

import (
	"log/slog"
	"sync"
)

// Event types
const (
	EventDeviceInterview   = "device_interview"
	EventDeviceAnnounce    = "device_announce"
	EventDeviceLeft        = "device_left"
	EventMessage           = "message"
	EventPropertyUpdate    = "property_update"
	EventState             = "state"
	EventDefinitionChanged = "definition_changed"
)

// Event is published on the hub bus.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EventHandler is a callback for events.
type EventHandler func(Event)

// EventBus provides pub/sub for hub events.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[string]map[uint64]EventHandler
	allHandlers map[uint64]EventHandler
	nextID      uint64
	logger      *slog.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		handlers:    make(map[string]map[uint64]EventHandler),
		allHandlers: make(map[uint64]EventHandler),
		logger:      logger,
	}
}

// On registers a handler for one event type and returns its unsubscribe
// function.
func (eb *EventBus) On(eventType string, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	if eb.handlers[eventType] == nil {
		eb.handlers[eventType] = make(map[uint64]EventHandler)
	}
	eb.handlers[eventType][id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.handlers[eventType], id)
	}
}

// OnAll registers a handler for every event type.
func (eb *EventBus) OnAll(handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	eb.allHandlers[id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.allHandlers, id)
	}
}

// Emit calls the matching handlers synchronously. A panicking handler is
// recovered and logged.
func (eb *EventBus) Emit(event Event) {
	eb.mu.RLock()
	handlers := make([]EventHandler, 0, len(eb.handlers[event.Type])+len(eb.allHandlers))
	for _, h := range eb.handlers[event.Type] {
		handlers = append(handlers, h)
	}
	for _, h := range eb.allHandlers {
		handlers = append(handlers, h)
	}
	eb.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error("event handler panic", "type", event.Type, "panic", r)
				}
			}()
			h(event)
		}()
	}
}

// StateEvent is the payload of EventState.
type StateEvent struct {
	IEEE         string         `json:"ieee"`
	FriendlyName string         `json:"friendly_name,omitempty"`
	State        map[string]any `json:"state"`
}

// PropertyEvent is the payload of EventPropertyUpdate.
type PropertyEvent struct {
	IEEE     string `json:"ieee"`
	Property string `json:"property"`
	Value    any    `json:"value"`
}

// DeviceEvent is the payload of the device lifecycle events and
// EventDefinitionChanged.
type DeviceEvent struct {
	IEEE      string `json:"ieee"`
	Model     string `json:"model,omitempty"`
	Vendor    string `json:"vendor,omitempty"`
	Supported bool   `json:"supported"`
}

// MessageEvent is the payload of EventMessage.
type MessageEvent struct {
	IEEE     string `json:"ieee"`
	Type     string `json:"type"`
	Cluster  string `json:"cluster"`
	Endpoint uint8  `json:"endpoint"`
	Data     any    `json:"data,omitempty"`
}
