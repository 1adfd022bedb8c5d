// Package ebiten connects the debug UI to the Ebiten game loop.
package ebiten

import (
	ebitenbackend "github.com/AllenDang/cimgui-go/backend/ebiten-backend"
	"github.com/AllenDang/cimgui-go/imgui"
	"github.com/hajimehoshi/ebiten/v2"
)

// ImguiBackend wraps the Ebiten Dear ImGui backend. Store it as a singleton
// so systems can reach it.
type ImguiBackend struct {
	*ebitenbackend.EbitenBackend
}

// NewImguiBackend creates the backend and its window. The ImGui ini file is
// disabled so window layout does not persist between runs.
func NewImguiBackend(title string, width, height int) ImguiBackend {
	backend := ebitenbackend.NewEbitenBackend()
	backend.CreateWindow(title, width, height)
	imgui.CurrentIO().SetIniFilename("")
	return ImguiBackend{EbitenBackend: backend}
}

// Overlay runs update between the backend's BeginFrame and EndFrame, so ImGui
// calls made by ECS systems during update land in this frame.
func (b ImguiBackend) Overlay(update func()) {
	b.BeginFrame()
	update()
	b.EndFrame()
}

// Draw renders the ImGui overlay on top of screen.
func (b ImguiBackend) Draw(screen *ebiten.Image) {
	b.EbitenBackend.Draw(screen)
}
