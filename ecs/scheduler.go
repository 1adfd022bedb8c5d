package ecs

import (
	"context"
	"math"
	"reflect"
	"time"
)

// System is run once per frame by a Scheduler. Exported Query and Singleton
// fields are initialized on Register; other fields are the system's own state.
type System interface {
	Execute(frame *UpdateFrame)
}

// UpdateFrame is what a system sees of the current frame. Commands queued on
// it are flushed after the last system.
type UpdateFrame struct {
	DeltaTime float64
	// Frame counts the scheduler's frames, starting at 1.
	Frame    uint64
	Commands *Commands
	Storage  *Storage
}

type SchedulerStats struct {
	SystemCount     int
	TotalExecutions int64
	Systems         []SystemStats
}

// SystemStats times one registered system. Name is the system's type name.
type SystemStats struct {
	Name           string
	ExecutionCount int64
	MinDuration    time.Duration
	MaxDuration    time.Duration
	AvgDuration    time.Duration
	LastDuration   time.Duration
	TotalDuration  time.Duration
}

func (st *SystemStats) record(d time.Duration) {
	st.ExecutionCount++
	st.LastDuration = d
	st.TotalDuration += d
	st.MinDuration = min(st.MinDuration, d)
	st.MaxDuration = max(st.MaxDuration, d)
}

// storageBound is implemented by *Query[T] and *Singleton[T].
type storageBound interface {
	Init(storage *Storage)
}

// queryExecutor is implemented by *Query[T].
type queryExecutor interface {
	Execute()
}

type registered struct {
	system  System
	queries []queryExecutor
	stats   SystemStats
}

// Scheduler runs systems in registration order against one Storage.
type Scheduler struct {
	storage *Storage
	systems []*registered
	frames  uint64
}

func NewScheduler(storage *Storage) *Scheduler {
	return &Scheduler{storage: storage}
}

// Register binds the system's exported Query and Singleton fields to the
// storage and appends it to the run order.
func (s *Scheduler) Register(system System) {
	t := reflect.TypeOf(system)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	s.systems = append(s.systems, &registered{
		system:  system,
		queries: s.bind(system),
		stats:   SystemStats{Name: t.Name(), MinDuration: math.MaxInt64},
	})
}

func (s *Scheduler) bind(system System) []queryExecutor {
	v := reflect.ValueOf(system)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}

	var queries []queryExecutor
	for i := range v.NumField() {
		field := v.Field(i)
		if !field.CanSet() || field.Kind() != reflect.Struct {
			continue
		}
		bound, ok := field.Addr().Interface().(storageBound)
		if !ok {
			continue
		}
		bound.Init(s.storage)
		if q, ok := bound.(queryExecutor); ok {
			queries = append(queries, q)
		}
	}
	return queries
}

// Once runs every system in registration order, refreshing each system's
// queries first, then flushes the frame's deferred commands.
func (s *Scheduler) Once(dt float64) {
	s.frames++
	frame := &UpdateFrame{
		DeltaTime: dt,
		Frame:     s.frames,
		Commands:  newCommands(),
		Storage:   s.storage,
	}

	for _, r := range s.systems {
		start := time.Now()
		for _, q := range r.queries {
			q.Execute()
		}
		r.system.Execute(frame)
		r.stats.record(time.Since(start))
	}

	frame.Commands.Flush(s.storage)
}

// Run calls Once on every tick of interval, with the measured elapsed time,
// until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Once(now.Sub(last).Seconds())
			last = now
		}
	}
}

func (s *Scheduler) GetStats() *SchedulerStats {
	stats := &SchedulerStats{
		SystemCount: len(s.systems),
		Systems:     make([]SystemStats, len(s.systems)),
	}
	for i, r := range s.systems {
		st := r.stats
		if st.ExecutionCount > 0 {
			st.AvgDuration = st.TotalDuration / time.Duration(st.ExecutionCount)
		}
		stats.Systems[i] = st
		stats.TotalExecutions += st.ExecutionCount
	}
	return stats
}
