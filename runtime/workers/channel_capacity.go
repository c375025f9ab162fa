package workers

import (
	"context"
	"log/slog"
	"reflect"
	"time"

	"chat-hub/domain/event"
)

type NamedChannel struct {
	Name    string
	Channel any
}

// ChannelCapacityWorker periodically reports the current capacity and
// length of the watched channels. Reading len and cap is non-blocking, so
// sampling never interferes with the hot path. Losing a sample now and
// then is fine, metrics are periodic.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	channels       []NamedChannel
	telemetryChan  chan event.Event
	metricInterval time.Duration
}

func NewChannelCapacityWorker(log *slog.Logger,
	channels []NamedChannel, telemetryChan chan event.Event,
	metricInterval time.Duration) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log: log, channels: channels,
		telemetryChan:  telemetryChan,
		metricInterval: metricInterval,
	}
}

func (w ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping capacity sampling")
			return nil
		case <-ticker.C:
			for _, nc := range w.channels {
				v := reflect.ValueOf(nc.Channel)
				if v.Kind() != reflect.Chan {
					w.log.Error("Provided object is not a channel", "name", nc.Name)
					continue
				}
				select {
				case <-ctx.Done():
					w.log.Debug("Context done, stopping capacity sampling")
					return nil
				case w.telemetryChan <- toCapacityEvent(nc.Name, v.Cap(), v.Len()):
				default:
					w.log.Debug("Observability telemetry event lost")
				}
			}
		}
	}
}

func toCapacityEvent(name string, capacity, length int) event.Event {
	return event.Event{
		Type:      event.ChannelCapacityType,
		CreatedAt: time.Now().UTC(),
		Payload: event.ChannelCapacity{
			ChannelName: name,
			Capacity:    capacity,
			Length:      length,
		},
	}
}
