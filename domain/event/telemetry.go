package event

import (
	"time"

	"chat-hub/domain/chat"
)

type Type string

const (
	DeliveryType        Type = "DELIVERY"
	ChannelCapacityType Type = "CHANNEL_CAPACITY"
	HeartbeatType       Type = "HEARTBEAT"
)

// Event is the telemetry envelope. Telemetry is best-effort: producers
// drop it when the channel is full rather than block the hot path.
type Event struct {
	Type      Type
	CreatedAt time.Time
	Payload   any
}

// Delivery reports one fan-out: how many recipients got the event and how
// many were dropped on backpressure.
type Delivery struct {
	Room       chat.ChannelName
	EventKind  string
	Recipients int
	Dropped    int
	At         time.Time
}

// ChannelCapacity reports the length and max capacity of an internal
// channel, sampled periodically.
type ChannelCapacity struct {
	ChannelName string
	Capacity    int
	Length      int
}

// Heartbeat is the process's own resource self-report.
type Heartbeat struct {
	Pid        int
	PidStatus  string
	CPUPercent float64
	RSSBytes   uint64
}
