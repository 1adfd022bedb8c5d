package ecsworld

import (
	"github.com/rs/zerolog"

	"github.com/plus3/navbridge/bridge"
	"github.com/plus3/navbridge/ecs"
)

// BridgeStatus is a singleton holding the outcome of the last bridge tick.
type BridgeStatus struct {
	Report bridge.Report
	Stats  bridge.Stats
	Err    error
}

// System advances the bridge once per scheduler frame and hands releases the
// bridge requested to the frame's command buffer. Register it after the
// systems that set goals and before the ones that consume feedback.
type System struct {
	Status ecs.Singleton[BridgeStatus]

	bridge *bridge.Bridge
	world  *World
	log    zerolog.Logger
	onTick func(bridge.Report, error)
}

// NewSystem creates the system and the BridgeStatus singleton.
func NewSystem(b *bridge.Bridge, w *World, log zerolog.Logger) *System {
	ecs.NewSingleton[BridgeStatus](w.Storage())
	return &System{bridge: b, world: w, log: log}
}

// OnTick registers fn to receive every tick's report.
func (s *System) OnTick(fn func(bridge.Report, error)) {
	s.onTick = fn
}

func (s *System) Execute(frame *ecs.UpdateFrame) {
	report, err := s.bridge.Advance(frame.DeltaTime)
	if n := s.world.PendingReleases(); n > 0 {
		s.log.Debug().Int("releases", n).Uint64("tick", report.Tick).Msg("releases flushed")
	}
	s.world.FlushReleases(frame.Commands)

	if status := s.Status.Get(); status != nil {
		status.Report = report
		status.Stats = s.bridge.Stats()
		status.Err = err
	}
	if s.onTick != nil {
		s.onTick(report, err)
	}
}

type arrivalView struct {
	*NavGoal
	*NavFeedback
	Target *TargetEntity `ecs:"optional"`
}

// ArrivalSystem clears NavGoal.Active once the host reports the goal reached.
// A follower arrives as soon as the host puts it within reach of its target,
// whatever the path status.
type ArrivalSystem struct {
	Agents ecs.Query[arrivalView]
}

func (s *ArrivalSystem) Execute(frame *ecs.UpdateFrame) {
	for _, a := range s.Agents.Iter() {
		if !a.NavGoal.Active || !a.NavFeedback.Goal.ApproxEqual(a.NavGoal.Point) {
			continue
		}
		if a.Target != nil {
			if a.Target.reach > 0 && a.NavFeedback.Remaining <= a.Target.reach {
				a.Target.AtTarget = true
				a.NavGoal.Active = false
			}
			continue
		}
		if a.NavFeedback.Status == bridge.PathReached {
			a.NavGoal.Active = false
		}
	}
}
