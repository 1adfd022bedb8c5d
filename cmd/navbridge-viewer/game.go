package main

import (
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/rs/zerolog"

	"github.com/plus3/navbridge/bridge"
	"github.com/plus3/navbridge/config"
	debugui_ebiten "github.com/plus3/navbridge/debugui/ebiten"
	"github.com/plus3/navbridge/navhost"
	"github.com/plus3/navbridge/sim"
)

var (
	background  = color.RGBA{24, 26, 32, 255}
	goalColor   = color.RGBA{120, 120, 140, 255}
	selectColor = color.RGBA{255, 255, 255, 255}

	statusColors = map[bridge.PathStatus]color.RGBA{
		bridge.PathIdle:    {150, 150, 150, 255},
		bridge.PathMoving:  {90, 160, 255, 255},
		bridge.PathReached: {110, 220, 120, 255},
		bridge.PathBlocked: {240, 90, 90, 255},
	}
)

// Game implements ebiten.Game around a Sim.
type Game struct {
	sim     *sim.Sim
	backend debugui_ebiten.ImguiBackend
	camera  *Camera
	input   *InputSystem
	watcher *config.Watcher
	log     zerolog.Logger
}

func (g *Game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyQ) {
		return ebiten.Termination
	}
	g.reload()

	g.backend.Overlay(func() {
		if _, err := g.sim.Once(1.0 / float64(ebiten.TPS())); err != nil {
			g.log.Error().Err(err).Msg("bridge tick failed")
		}
	})
	return nil
}

// reload applies configs delivered by the watcher since the last frame.
func (g *Game) reload() {
	if g.watcher == nil {
		return
	}
	for {
		select {
		case cfg, ok := <-g.watcher.Configs:
			if !ok {
				g.watcher = nil
				return
			}
			g.sim.Apply(cfg)
		case err, ok := <-g.watcher.Errors:
			if !ok {
				g.watcher = nil
				return
			}
			g.log.Warn().Err(err).Msg("config reload failed; keeping previous config")
		default:
			return
		}
	}
}

func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(background)

	var selected bridge.Entity
	if g.input != nil {
		selected = g.input.selected
	}
	drawAgents(screen, g.camera, g.sim.Host.Agents(), selected)

	g.backend.Draw(screen)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	g.backend.Layout(outsideWidth, outsideHeight)
	g.camera.ScreenW = outsideWidth
	g.camera.ScreenH = outsideHeight
	return outsideWidth, outsideHeight
}

func drawAgents(screen *ebiten.Image, camera *Camera, agents []navhost.AgentInfo, selected bridge.Entity) {
	lo, hi := camera.Visible()
	for _, a := range agents {
		if a.HasGoal && a.Status != bridge.PathReached {
			x0, y0 := camera.ToScreen(a.Position)
			x1, y1 := camera.ToScreen(a.Goal)
			vector.StrokeLine(screen, x0, y0, x1, y1, 1, goalColor, false)
		}

		p := a.Position
		if p.X < lo.X-a.Radius || p.Y < lo.Y-a.Radius || p.X > hi.X+a.Radius || p.Y > hi.Y+a.Radius {
			continue
		}
		x, y := camera.ToScreen(p)
		r := float32(a.Radius * camera.Scale)
		vector.DrawFilledCircle(screen, x, y, r, statusColors[a.Status], true)
		if a.Entity == selected {
			vector.StrokeCircle(screen, x, y, r+2, 1.5, selectColor, true)
		}
	}
}
