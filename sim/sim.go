// Package sim assembles a runnable navigation simulation: an ECS storage with
// the default agent components, a navhost.Host, the bridge between them and a
// scheduler that drives all three.
package sim

import (
	"github.com/rs/zerolog"

	"github.com/plus3/navbridge/bridge"
	"github.com/plus3/navbridge/bridge/ecsworld"
	"github.com/plus3/navbridge/config"
	"github.com/plus3/navbridge/ecs"
	"github.com/plus3/navbridge/navhost"
)

// Sim owns every part of a simulation. Fields are exposed for tools and tests;
// mutate them only between frames.
type Sim struct {
	Config    config.Config
	Registry  *ecs.ComponentRegistry
	Storage   *ecs.Storage
	World     *ecsworld.World
	Host      *navhost.Host
	Bridge    *bridge.Bridge
	Scheduler *ecs.Scheduler
	Targets   *ecsworld.TargetSystem
	Sync      *ecsworld.System
	Stepper   *navhost.System

	log zerolog.Logger
}

// New builds a simulation from cfg. Systems passed in run each frame before
// target following and the bridge, so goals they set are pushed in the same
// frame.
func New(cfg config.Config, log zerolog.Logger, systems ...ecs.System) (*Sim, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registry := ecs.NewComponentRegistry()
	ecsworld.RegisterComponents(registry)
	storage := ecs.NewStorage(registry)

	world, err := ecsworld.NewWorld(storage, cfg.Mapping, log.With().Str("component", "ecsworld").Logger())
	if err != nil {
		return nil, err
	}

	host := navhost.New(hostOptions(cfg.Host, &log))

	opts := cfg.BridgeOptions()
	opts.Logger = &log
	b := bridge.New(world, host, opts)

	host.OnDestroyed(b.HostDestroyed)
	world.Attach(b)

	s := &Sim{
		Registry:  registry,
		Storage:   storage,
		World:     world,
		Host:      host,
		Bridge:    b,
		Scheduler: ecs.NewScheduler(storage),
		Targets:   ecsworld.NewTargetSystem(world),
		Sync:      ecsworld.NewSystem(b, world, log),
		Stepper:   &navhost.System{Host: host},
		log:       log,
	}
	s.Apply(cfg)

	for _, system := range systems {
		s.Scheduler.Register(system)
	}
	s.Scheduler.Register(s.Targets)
	s.Scheduler.Register(s.Sync)
	s.Scheduler.Register(s.Stepper)
	s.Scheduler.Register(&ecsworld.ArrivalSystem{})
	return s, nil
}

func hostOptions(spec config.HostSpec, log *zerolog.Logger) navhost.Options {
	return navhost.Options{
		Capacity:     spec.Capacity,
		StepInterval: spec.StepInterval,
		MaxSubsteps:  spec.MaxSubsteps,
		ArriveRadius: spec.ArriveRadius,
		Damping:      spec.Damping,
		Logger:       log,
	}
}

// Apply takes the parts of cfg that can change while running: prefabs, host
// capacity and the host's rejected prefabs. Bridge, mapping and physics
// settings keep the values New was given.
func (s *Sim) Apply(cfg config.Config) {
	s.Config = cfg
	s.World.SetPrefabs(cfg.Prefabs)
	s.Host.SetCapacity(cfg.Host.Capacity)
	if len(cfg.Host.Reject) > 0 {
		s.Host.SetFilter(navhost.RejectPrefabs(cfg.Host.Reject...))
	} else {
		s.Host.SetFilter(nil)
	}
	s.log.Info().
		Strs("prefabs", cfg.PrefabNames()).
		Int("capacity", cfg.Host.Capacity).
		Strs("reject", cfg.Host.Reject).
		Msg("configuration applied")
}

// Spawn creates an agent from the named prefab at pos. Call it between frames.
func (s *Sim) Spawn(prefab string, pos bridge.Vec2) (bridge.Entity, error) {
	id, err := s.World.SpawnPrefab(prefab, pos)
	if err != nil {
		return 0, err
	}
	key, _ := s.World.Key(id)
	return key, nil
}

// Once runs one frame of dt seconds and returns the bridge's report for it.
func (s *Sim) Once(dt float64) (bridge.Report, error) {
	s.Scheduler.Once(dt)
	status := s.Sync.Status.Get()
	return status.Report, status.Err
}
