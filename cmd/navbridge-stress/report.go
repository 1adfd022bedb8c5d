package main

import (
	"fmt"
	"io"
	"runtime"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/plus3/navbridge/bridge"
	"github.com/plus3/navbridge/sim"
)

type Report struct {
	// Configuration
	Duration time.Duration
	Agents   int
	Prefabs  []string
	Churn    float64
	Despawn  float64

	// Results
	Frames         int64
	TotalTime      time.Duration
	UpdateTime     Stats
	TickTime       Stats
	Bridge         bridge.Stats
	Mirror         map[string]int
	HostAgents     int
	Chaos          ChaosCounts
	Halted         string
	GCPauseMetrics bool
	MemStatsStart  runtime.MemStats
	MemStatsEnd    runtime.MemStats
}

// ChaosCounts is what the load generator did to the population.
type ChaosCounts struct {
	Spawned   int
	Deleted   int
	Despawned int
	Released  int
	Goals     int
}

type Stats struct {
	Min     time.Duration
	Max     time.Duration
	Avg     time.Duration
	P99     time.Duration
	Samples []time.Duration
}

func (s *Stats) Finalize() {
	if len(s.Samples) == 0 {
		return
	}

	var total time.Duration
	s.Min = s.Samples[0]
	s.Max = s.Samples[0]

	for _, sample := range s.Samples {
		if sample < s.Min {
			s.Min = sample
		}
		if sample > s.Max {
			s.Max = sample
		}
		total += sample
	}
	s.Avg = total / time.Duration(len(s.Samples))
	s.P99 = percentile(s.Samples, 0.99)
}

// percentile returns the nearest-rank percentile of samples without
// reordering them.
func percentile(samples []time.Duration, p float64) time.Duration {
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	slices.Sort(sorted)
	rank := int(float64(len(sorted))*p+0.5) - 1
	rank = max(0, min(rank, len(sorted)-1))
	return sorted[rank]
}

func (r *Report) collect(s *sim.Sim, c *chaos) {
	r.Bridge = s.Bridge.Stats()
	mirror := s.Bridge.Mirror()
	r.Mirror = map[string]int{
		bridge.StateTracked.String():        mirror.Count(bridge.StateTracked),
		bridge.StateBound.String():          mirror.Count(bridge.StateBound),
		bridge.StatePendingDestroy.String(): mirror.Count(bridge.StatePendingDestroy),
	}
	r.HostAgents = s.Host.Len()
	if err := s.Bridge.Halted(); err != nil {
		r.Halted = err.Error()
	}
	r.Chaos = ChaosCounts{
		Spawned:   c.spawned,
		Deleted:   c.deleted,
		Despawned: c.despawned,
		Released:  c.released,
		Goals:     c.goals,
	}
}

func (r *Report) Generate(w io.Writer) error {
	const reportTemplate = `
# Navigation Bridge Stress Report

## Test Configuration
- **Run Duration:** {{.Duration}}
- **Target Agents:** {{.Agents}}
- **Prefabs:** {{join .Prefabs ", "}}
- **ECS Churn:** {{printf "%.3f" .Churn}}/s
- **Host Despawns:** {{printf "%.1f" .Despawn}}/s

## Performance Results
- **Frames:** {{.Frames}}
- **Total Test Time:** {{.TotalTime}}
- **Frame Time:**
  - **Avg:** {{.UpdateTime.Avg}}
  - **Min:** {{.UpdateTime.Min}}
  - **Max:** {{.UpdateTime.Max}}
  - **P99:** {{.UpdateTime.P99}}
- **Bridge Tick Time:**
  - **Avg:** {{.TickTime.Avg}}
  - **Max:** {{.TickTime.Max}}
  - **P99:** {{.TickTime.P99}}

## Bridge
- Ticks:          {{.Bridge.Ticks}}
- Synced:         {{.Bridge.Synced}}
- Spawned:        {{.Bridge.Spawned}} ({{.Bridge.SpawnFailures}} failures)
- Removed:        {{.Bridge.Removed}}
- Errors:         {{.Bridge.Errors}}
- Warnings:       {{.Bridge.Warnings}}
- Mirror:         {{range $state, $n := .Mirror}}{{$state}}={{$n}} {{end}}
- Host Agents:    {{.HostAgents}}
{{- if .Halted}}
- **HALTED:** {{.Halted}}
{{- end}}

## Load
- Spawned:        {{.Chaos.Spawned}}
- Deleted (ECS):  {{.Chaos.Deleted}}
- Despawned (host): {{.Chaos.Despawned}}
- Released:       {{.Chaos.Released}}
- Goals Set:      {{.Chaos.Goals}}

## Memory Usage (MB)
- Heap Alloc:     {{mb .MemStatsStart.HeapAlloc}} (start) -> {{mb .MemStatsEnd.HeapAlloc}} (end) -> delta: {{bsub .MemStatsEnd.HeapAlloc .MemStatsStart.HeapAlloc | mb}}
- Total Alloc:    {{mb .MemStatsStart.TotalAlloc}} (start) -> {{mb .MemStatsEnd.TotalAlloc}} (end) -> delta: {{bsub .MemStatsEnd.TotalAlloc .MemStatsStart.TotalAlloc | mb}}
- Sys Memory:     {{mb .MemStatsStart.Sys}} (start) -> {{mb .MemStatsEnd.Sys}} (end)
- Num GC:         {{.MemStatsStart.NumGC}} (start) -> {{.MemStatsEnd.NumGC}} (end) -> delta: {{usub .MemStatsEnd.NumGC .MemStatsStart.NumGC}}

{{if .GCPauseMetrics}}
## GC Pause Durations
- **Total GC Pause:** {{.MemStatsEnd.PauseTotalNs | ns}}
- **Num GC Cycles:** {{ usub .MemStatsEnd.NumGC .MemStatsStart.NumGC }}
{{end}}
`

	fm := template.FuncMap{
		"mb": func(v any) string {
			switch val := v.(type) {
			case uint64:
				return fmt.Sprintf("%.2f", float64(val)/1024/1024)
			case int64:
				return fmt.Sprintf("%.2f", float64(val)/1024/1024)
			default:
				return "N/A"
			}
		},
		"bsub": func(a, b uint64) int64 {
			return int64(a) - int64(b)
		},
		"usub": func(a, b uint32) uint32 {
			return a - b
		},
		"ns": func(ns uint64) string {
			return time.Duration(ns).String()
		},
		"join": strings.Join,
	}

	tmpl, err := template.New("report").Funcs(fm).Parse(reportTemplate)
	if err != nil {
		return err
	}

	return tmpl.Execute(w, r)
}
