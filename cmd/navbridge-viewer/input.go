package main

import (
	"math/rand/v2"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/rs/zerolog"

	"github.com/plus3/navbridge/bridge"
	"github.com/plus3/navbridge/bridge/ecsworld"
	"github.com/plus3/navbridge/debugui"
	"github.com/plus3/navbridge/ecs"
	"github.com/plus3/navbridge/navhost"
	"github.com/plus3/navbridge/sim"
)

const panSpeed = 8

type goalView struct {
	*ecsworld.Navigable
	*ecsworld.NavGoal
}

// InputSystem turns mouse and keyboard input into goals, spawns and removals.
// It runs before the bridge so goals set here are pushed the same frame.
type InputSystem struct {
	Agents ecs.Query[goalView]
	UI     ecs.Singleton[debugui.ImguiInputState]

	camera   *Camera
	world    *ecsworld.World
	host     *navhost.Host
	config   func() []string
	prefab   int
	selected bridge.Entity
}

func (s *InputSystem) attach(sm *sim.Sim) {
	s.world = sm.World
	s.host = sm.Host
	s.config = func() []string { return sm.Config.PrefabNames() }
}

// pick returns the agent whose body contains p.
func pick(agents []navhost.AgentInfo, p bridge.Vec2) (bridge.Entity, bool) {
	for _, a := range agents {
		if a.Position.Dist(p) <= a.Radius {
			return a.Entity, true
		}
	}
	return 0, false
}

func (s *InputSystem) Execute(frame *ecs.UpdateFrame) {
	s.keyboard(frame)

	if ui := s.UI.Get(); ui != nil && ui.WantCaptureMouse {
		return
	}

	x, y := ebiten.CursorPosition()
	point := s.camera.ToWorld(x, y)

	if _, wheel := ebiten.Wheel(); wheel != 0 {
		factor := 1.1
		if wheel < 0 {
			factor = 1 / factor
		}
		s.camera.Zoom(factor, x, y)
	}

	switch {
	case inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft):
		if e, ok := pick(s.host.Agents(), point); ok {
			s.selected = e
			return
		}
		s.sendTo(point)

	case inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonRight):
		names := s.config()
		if len(names) == 0 {
			return
		}
		_ = s.world.QueueSpawnPrefab(frame.Commands, names[s.prefab%len(names)], point)
	}
}

func (s *InputSystem) sendTo(point bridge.Vec2) {
	if s.selected != 0 {
		if err := s.world.SetGoal(s.selected, point); err == nil {
			return
		}
		s.selected = 0
	}
	for _, a := range s.Agents.Values() {
		a.NavGoal.Point = point
		a.NavGoal.Active = true
	}
}

func (s *InputSystem) keyboard(frame *ecs.UpdateFrame) {
	if ebiten.IsKeyPressed(ebiten.KeyArrowLeft) {
		s.camera.Pan(panSpeed, 0)
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowRight) {
		s.camera.Pan(-panSpeed, 0)
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowUp) {
		s.camera.Pan(0, panSpeed)
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowDown) {
		s.camera.Pan(0, -panSpeed)
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyTab) {
		s.prefab++
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		s.selected = 0
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyD) {
		if handles := s.host.Handles(); len(handles) > 0 {
			_ = s.host.Despawn(handles[rand.IntN(len(handles))])
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyDelete) && s.selected != 0 {
		if id, ok := s.world.Resolve(s.selected); ok {
			frame.Commands.Delete(id)
		}
		s.selected = 0
	}
}

// populate spawns n agents spread over the visible area, cycling prefabs.
func populate(sm *sim.Sim, n int, log zerolog.Logger) {
	names := sm.Config.PrefabNames()
	if len(names) == 0 {
		return
	}
	for i := 0; i < n; i++ {
		pos := bridge.Vec2{X: 10 + rand.Float64()*140, Y: 10 + rand.Float64()*70}
		if _, err := sm.Spawn(names[i%len(names)], pos); err != nil {
			log.Warn().Err(err).Msg("spawn failed")
		}
	}
}
