package main

import (
	"math/rand/v2"

	"github.com/plus3/navbridge/bridge"
	"github.com/plus3/navbridge/bridge/ecsworld"
	"github.com/plus3/navbridge/ecs"
	"github.com/plus3/navbridge/navhost"
	"github.com/plus3/navbridge/sim"
)

type agentView struct {
	*ecsworld.Navigable
	*ecsworld.NavGoal
}

// chaos keeps the population at its target, hands idle agents new goals and
// removes agents from both sides of the bridge at the configured rates.
// Entities the bridge released are deleted once their tag is gone.
type chaos struct {
	Agents    ecs.Query[agentView]
	Leftovers ecs.Query[struct{ *ecsworld.NavFeedback }]

	world *ecsworld.World
	host  *navhost.Host
	rng   *rand.Rand

	prefabs []string
	target  int
	churn   float64
	despawn float64
	arena   float64
	owed    float64 // fractional host despawns carried between frames

	spawned   int
	deleted   int
	despawned int
	released  int
	goals     int
}

func newChaos(opts options, prefabs []string) *chaos {
	return &chaos{
		rng:     rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15)),
		prefabs: prefabs,
		target:  opts.agents,
		churn:   opts.churn,
		despawn: opts.despawn,
		arena:   opts.arena,
	}
}

func (c *chaos) attach(s *sim.Sim) {
	c.world = s.World
	c.host = s.Host
}

func (c *chaos) point() bridge.Vec2 {
	return bridge.Vec2{X: c.rng.Float64() * c.arena, Y: c.rng.Float64() * c.arena}
}

func (c *chaos) Execute(frame *ecs.UpdateFrame) {
	for id := range c.Leftovers.Iter() {
		if _, navigable := c.world.Key(id); !navigable {
			frame.Commands.Delete(id)
			c.released++
		}
	}

	live := 0
	for id, a := range c.Agents.Iter() {
		if c.rng.Float64() < c.churn*frame.DeltaTime {
			frame.Commands.Delete(id)
			c.deleted++
			continue
		}
		live++
		if !a.NavGoal.Active {
			a.NavGoal.Point = c.point()
			a.NavGoal.Active = true
			c.goals++
		}
	}

	for ; live < c.target; live++ {
		prefab := c.prefabs[c.spawned%len(c.prefabs)]
		if err := c.world.QueueSpawnPrefab(frame.Commands, prefab, c.point()); err != nil {
			continue
		}
		c.spawned++
	}

	c.owed += c.despawn * frame.DeltaTime
	if c.owed < 1 {
		return
	}
	handles := c.host.Handles()
	for ; c.owed >= 1 && len(handles) > 0; c.owed-- {
		i := c.rng.IntN(len(handles))
		if c.host.Despawn(handles[i]) == nil {
			c.despawned++
		}
		handles[i] = handles[len(handles)-1]
		handles = handles[:len(handles)-1]
	}
	c.owed = min(c.owed, 1)
}
