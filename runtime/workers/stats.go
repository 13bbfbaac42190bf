package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// SessionCounter is satisfied by the session registry.
type SessionCounter interface {
	Len() int
}

// DropCounter is satisfied by the broadcast router.
type DropCounter interface {
	Dropped() uint64
}

// Stats is one sample of the relay load.
type Stats struct {
	Sessions   int
	Dropped    uint64
	CPUPercent float64
	RSS        uint64
}

// StatsWorker periodically logs live sessions, dropped deliveries and the
// relay process footprint.
type StatsWorker struct {
	log            *slog.Logger
	sessions       SessionCounter
	drops          DropCounter
	metricInterval time.Duration
	samples        chan Stats
}

func NewStatsWorker(log *slog.Logger, sessions SessionCounter, drops DropCounter,
	metricInterval time.Duration) *StatsWorker {
	return &StatsWorker{
		log:            log,
		sessions:       sessions,
		drops:          drops,
		metricInterval: metricInterval,
	}
}

// WithSamples also publishes every sample on ch, dropping it when ch is full.
func (w *StatsWorker) WithSamples(ch chan Stats) *StatsWorker {
	w.samples = ch
	return w
}

func (w *StatsWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping stats sampling")
			return nil
		case <-ticker.C:
			stats := w.sample(p)
			w.log.Info("Relay stats",
				"sessions", stats.Sessions,
				"dropped_deliveries", stats.Dropped,
				"cpu_percent", stats.CPUPercent,
				"rss_bytes", stats.RSS)
			if w.samples != nil {
				select {
				case w.samples <- stats:
				default:
				}
			}
		}
	}
}

func (w *StatsWorker) sample(p *process.Process) Stats {
	stats := Stats{Sessions: w.sessions.Len(), Dropped: w.drops.Dropped()}
	cpu, err := p.CPUPercent()
	if err != nil {
		w.log.Debug("Error while finding process cpu usage", "err", err)
	}
	stats.CPUPercent = cpu
	mem, err := p.MemoryInfo()
	if err != nil {
		w.log.Debug("Error while finding process ram usage", "err", err)
	} else {
		stats.RSS = mem.RSS
	}
	return stats
}
