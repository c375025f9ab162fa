package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"chat-hub/domain/event"
)

// HeartbeatWorker samples the server's own CPU, RAM, and OS status on a
// fixed interval and pushes the self-report through the telemetry channel.
type HeartbeatWorker struct {
	log           *slog.Logger
	telemetryChan chan event.Event
	interval      time.Duration
}

func NewHeartbeatWorker(log *slog.Logger,
	telemetryChan chan event.Event,
	interval time.Duration) *HeartbeatWorker {
	return &HeartbeatWorker{
		log:           log,
		telemetryChan: telemetryChan,
		interval:      interval,
	}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting heartbeat worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rss, cpu, status, err := getSelfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}

			evt := event.Event{
				Type:      event.HeartbeatType,
				CreatedAt: time.Now().UTC(),
				Payload: event.Heartbeat{
					Pid:        os.Getpid(),
					PidStatus:  status,
					CPUPercent: cpu,
					RSSBytes:   rss,
				},
			}
			select {
			case <-ctx.Done():
				return nil
			case w.telemetryChan <- evt:
			default:
				w.log.Debug("Observability telemetry event lost")
			}
		}
	}
}

// getSelfStats retrieves technical metrics (Memory, CPU, and OS Status)
// for the given process.
func getSelfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
