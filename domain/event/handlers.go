package event

import (
	"fmt"
	"log/slog"
	"time"

	"chat-hub/errors"
)

type Handler interface {
	Handle(e Event)
}

// DeliveryHandler observes fan-out results and warns when recipients were
// dropped or when delivery lagged behind the originating mutation.
type DeliveryHandler struct {
	log              *slog.Logger
	latencyThreshold time.Duration
}

func NewDeliveryHandler(log *slog.Logger, latencyThreshold time.Duration) *DeliveryHandler {
	return &DeliveryHandler{log: log, latencyThreshold: latencyThreshold}
}

func (h *DeliveryHandler) Handle(e Event) {
	payload, ok := e.Payload.(Delivery)
	if !ok {
		return
	}

	leadTime := time.Since(payload.At)
	h.log.Debug("telemetry: fanout delivery",
		"room", payload.Room,
		"kind", payload.EventKind,
		"recipients", payload.Recipients,
		"dropped", payload.Dropped,
		"lead_time_ms", leadTime.Milliseconds(),
	)

	if payload.Dropped > 0 {
		h.log.Warn("recipients dropped on backpressure",
			"room", payload.Room, "dropped", payload.Dropped)
	}
	if leadTime > h.latencyThreshold {
		h.log.Warn("high delivery latency detected", "lead_time", leadTime)
	}
}

// HeartbeatHandler logs the periodic resource self-report.
type HeartbeatHandler struct {
	log *slog.Logger
}

func NewHeartbeatHandler(log *slog.Logger) *HeartbeatHandler {
	return &HeartbeatHandler{log: log}
}

func (h HeartbeatHandler) Handle(e Event) {
	if e.Type != HeartbeatType {
		return
	}
	payload, ok := e.Payload.(Heartbeat)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error())
		return
	}
	h.log.Info("process heartbeat",
		"pid", payload.Pid,
		"status", payload.PidStatus,
		"cpu_percent", payload.CPUPercent,
		"ram_bytes", payload.RSSBytes,
	)
}

// ChannelCapacityHandler handles events reporting the capacity of channels.
// Useful for observability, detecting backpressure, and avoiding drops.
type ChannelCapacityHandler struct {
	log                  *slog.Logger
	lowCapacityThreshold int
}

func NewChannelCapacityHandler(log *slog.Logger, lowCapacityThreshold int) *ChannelCapacityHandler {
	return &ChannelCapacityHandler{log: log, lowCapacityThreshold: lowCapacityThreshold}
}

func (h ChannelCapacityHandler) Handle(e Event) {
	switch e.Type {
	case ChannelCapacityType:
		payload, ok := e.Payload.(ChannelCapacity)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.log.Debug(fmt.Sprintf("Channel %s usage: %d / %d", payload.ChannelName, payload.Length, payload.Capacity))
		if payload.Capacity <= 0 {
			// In case of unbuffered channel
			return
		}
		capacityLeft := payload.Capacity - payload.Length
		if capacityLeft > 0 && capacityLeft <= h.lowCapacityThreshold {
			h.log.Warn(fmt.Sprintf("telemetry channel capacity left : %d", capacityLeft))
		}
	}
}
