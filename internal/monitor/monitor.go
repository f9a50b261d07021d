package monitor

import (
	"context"
	"time"

	"fbdevops/internal/emulator"
	"fbdevops/internal/store"
	"fbdevops/internal/tunnel"

	"github.com/go-faster/errors"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

var ErrInterval = errors.New("watch interval must be positive")

// Snapshot is one observation of the local environment.
type Snapshot struct {
	Time        time.Time
	Project     string
	Emulators   emulator.Status
	Tunnels     []tunnel.Tunnel
	Collections []store.CollectionStat
	Topics      []string
	Errors      []string
}

type EmulatorStatus interface {
	Status(ctx context.Context) emulator.Status
}

type TunnelLister interface {
	List() ([]tunnel.Tunnel, error)
}

type TopicLister interface {
	List(ctx context.Context) ([]string, error)
}

// Sources feed a Monitor. Collections and Topics are optional.
type Sources struct {
	Emulators   EmulatorStatus
	Tunnels     TunnelLister
	Collections store.Statter
	Topics      TopicLister
}

type Monitor struct {
	project string
	src     Sources
	now     func() time.Time
	// collection counts walk every document, so they are reused for a while
	counts *expirable.LRU[string, []store.CollectionStat]
}

func New(project string, src Sources, countsTTL time.Duration) *Monitor {
	return &Monitor{
		project: project,
		src:     src,
		now:     time.Now,
		counts:  expirable.NewLRU[string, []store.CollectionStat](1, nil, countsTTL),
	}
}

// Snapshot collects every source. Failures are recorded in Errors instead of
// aborting the snapshot.
func (m *Monitor) Snapshot(ctx context.Context) Snapshot {
	s := Snapshot{Time: m.now(), Project: m.project}

	if m.src.Emulators != nil {
		s.Emulators = m.src.Emulators.Status(ctx)
	}

	if m.src.Tunnels != nil {
		tunnels, err := m.src.Tunnels.List()
		if err != nil {
			s.Errors = append(s.Errors, "tunnels: "+err.Error())
		}
		s.Tunnels = tunnels
	}

	if m.src.Collections != nil {
		if cached, ok := m.counts.Get(m.project); ok {
			s.Collections = cached
		} else if stats, err := m.src.Collections.Collections(ctx); err != nil {
			s.Errors = append(s.Errors, "firestore: "+err.Error())
		} else {
			m.counts.Add(m.project, stats)
			s.Collections = stats
		}
	}

	if m.src.Topics != nil {
		topics, err := m.src.Topics.List(ctx)
		if err != nil {
			s.Errors = append(s.Errors, "pubsub: "+err.Error())
		}
		s.Topics = topics
	}

	return s
}

// Watch calls fn with a fresh snapshot every interval until ctx is done.
func (m *Monitor) Watch(ctx context.Context, interval time.Duration, fn func(Snapshot)) error {
	if interval <= 0 {
		return errors.Wrap(ErrInterval, interval.String())
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		fn(m.Snapshot(ctx))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
