package debugui

import (
	"fmt"

	"github.com/AllenDang/cimgui-go/imgui"

	"github.com/plus3/navbridge/bridge"
	"github.com/plus3/navbridge/ecs"
	"github.com/plus3/navbridge/navhost"
)

const maxWarnings = 32

var stateColors = map[bridge.State]imgui.Vec4{
	bridge.StateTracked:        imgui.NewVec4(1.0, 0.8, 0.0, 1.0),
	bridge.StateBound:          imgui.NewVec4(0.4, 1.0, 0.4, 1.0),
	bridge.StatePendingDestroy: imgui.NewVec4(1.0, 0.4, 0.4, 1.0),
}

// mirrorRow is one line of the mirror table.
type mirrorRow struct {
	Entry    bridge.MirrorEntry
	Stalled  bool
	Status   bridge.PathStatus
	HasAgent bool
}

// BridgePanel shows the bridge's mirror, its counters and the per-tick cost,
// and offers retries for stalled spawns.
type BridgePanel struct {
	bridge *bridge.Bridge
	host   *navhost.Host

	history []float32 // tick durations in ms
	index   int

	warnings []bridge.Warning
	lastErr  error

	show     [4]bool // Tracked, Bound, PendingDestroy, stalled only
	selected bridge.Entity
}

// NewBridgePanel creates a panel keeping historyFrames tick durations.
func NewBridgePanel(b *bridge.Bridge, host *navhost.Host, historyFrames int) *BridgePanel {
	if historyFrames <= 0 {
		historyFrames = 120
	}
	return &BridgePanel{
		bridge:  b,
		host:    host,
		history: make([]float32, historyFrames),
		show:    [4]bool{true, true, true, false},
	}
}

// Observe records one tick. Pass it to ecsworld.System.OnTick.
func (p *BridgePanel) Observe(r bridge.Report, err error) {
	p.history[p.index] = float32(r.Duration.Seconds() * 1000)
	p.index = (p.index + 1) % len(p.history)

	p.warnings = append(p.warnings, r.Warnings...)
	if over := len(p.warnings) - maxWarnings; over > 0 {
		p.warnings = append(p.warnings[:0], p.warnings[over:]...)
	}
	if err != nil {
		p.lastErr = err
	}
}

// Item wraps the panel as an ImguiItem.
func (p *BridgePanel) Item() ImguiItem {
	return ImguiItem{Render: p.Render}
}

// Spawn adds the panel to storage as an ImguiItem entity.
func (p *BridgePanel) Spawn(storage *ecs.Storage) ecs.EntityId {
	return storage.Spawn(p.Item())
}

func (p *BridgePanel) averageMs() float32 {
	var sum float32
	for _, ms := range p.history {
		sum += ms
	}
	return sum / float32(len(p.history))
}

// rows returns the mirror entries that pass the state filter.
func (p *BridgePanel) rows() []mirrorRow {
	stalled := make(map[bridge.Entity]bool)
	for _, e := range p.bridge.Stalled() {
		stalled[e] = true
	}

	var out []mirrorRow
	for _, entry := range p.bridge.Mirror().All() {
		row := mirrorRow{Entry: entry, Stalled: stalled[entry.Entity]}
		if p.show[3] && !row.Stalled {
			continue
		}
		switch entry.State {
		case bridge.StateTracked:
			if !p.show[0] {
				continue
			}
		case bridge.StateBound:
			if !p.show[1] {
				continue
			}
		case bridge.StatePendingDestroy:
			if !p.show[2] {
				continue
			}
		}
		if entry.Handle != 0 && p.host != nil {
			if fb, err := p.host.Query(entry.Handle); err == nil {
				row.Status = fb.Status
				row.HasAgent = true
			}
		}
		out = append(out, row)
	}
	return out
}

// Render draws the panel. It must run inside an ImGui frame.
func (p *BridgePanel) Render() {
	imgui.SetNextWindowPosV(imgui.NewVec2(10, 10), imgui.CondOnce, imgui.NewVec2(0, 0))
	imgui.SetNextWindowSizeV(imgui.NewVec2(420, 520), imgui.CondOnce)
	if !imgui.BeginV("Navigation Bridge", nil, imgui.WindowFlagsNone) {
		imgui.End()
		return
	}

	if halted := p.bridge.Halted(); halted != nil {
		imgui.TextColored(imgui.NewVec4(1.0, 0.3, 0.3, 1.0), "HALTED")
		imgui.Text(halted.Error())
	} else {
		imgui.TextColored(imgui.NewVec4(0.0, 1.0, 0.0, 1.0), "RUNNING")
	}

	mirror := p.bridge.Mirror()
	imgui.Text(fmt.Sprintf("Tick: %d  Pending notifications: %d", p.bridge.Tick(), p.bridge.Pending()))
	imgui.Text(fmt.Sprintf("Tracked: %d  Bound: %d  Pending destroy: %d",
		mirror.Count(bridge.StateTracked), mirror.Count(bridge.StateBound), mirror.Count(bridge.StatePendingDestroy)))
	if p.host != nil {
		imgui.Text(fmt.Sprintf("Host agents: %d", p.host.Len()))
	}

	if imgui.BeginTabBar("BridgeTabs") {
		if imgui.BeginTabItem("Stats") {
			p.renderStats()
			imgui.EndTabItem()
		}
		if imgui.BeginTabItem("Mirror") {
			p.renderMirror()
			imgui.EndTabItem()
		}
		if imgui.BeginTabItem("Warnings") {
			p.renderWarnings()
			imgui.EndTabItem()
		}
		imgui.EndTabBar()
	}

	imgui.End()
}

func (p *BridgePanel) renderStats() {
	stats := p.bridge.Stats()
	imgui.Text(fmt.Sprintf("Ticks: %d", stats.Ticks))
	imgui.Text(fmt.Sprintf("Synced: %d", stats.Synced))
	imgui.Text(fmt.Sprintf("Spawned: %d  Failures: %d", stats.Spawned, stats.SpawnFailures))
	imgui.Text(fmt.Sprintf("Removed: %d", stats.Removed))
	imgui.Text(fmt.Sprintf("Errors: %d  Warnings: %d", stats.Errors, stats.Warnings))
	imgui.Separator()
	imgui.Text(fmt.Sprintf("Tick cost: avg %.3f ms  last %s  max %s", p.averageMs(), stats.LastDuration, stats.MaxDuration))
	imgui.PlotLinesFloatPtr("##tickcost", &p.history[0], int32(len(p.history)))
	if p.lastErr != nil {
		imgui.Separator()
		imgui.TextColored(imgui.NewVec4(1.0, 0.3, 0.3, 1.0), p.lastErr.Error())
	}
}

func (p *BridgePanel) renderMirror() {
	imgui.Checkbox("Tracked", &p.show[0])
	imgui.SameLine()
	imgui.Checkbox("Bound", &p.show[1])
	imgui.SameLine()
	imgui.Checkbox("Pending", &p.show[2])
	imgui.SameLine()
	imgui.Checkbox("Stalled only", &p.show[3])

	if stalled := p.bridge.Stalled(); len(stalled) > 0 {
		if imgui.Button(fmt.Sprintf("Retry %d stalled", len(stalled))) {
			p.bridge.RetryStalled()
		}
	}

	const tableFlags = imgui.TableFlagsBorders | imgui.TableFlagsRowBg | imgui.TableFlagsScrollY
	if !imgui.BeginTableV("MirrorTable", 5, tableFlags, imgui.NewVec2(0, 300), 0) {
		return
	}
	imgui.TableSetupColumn("Entity")
	imgui.TableSetupColumn("Handle")
	imgui.TableSetupColumn("State")
	imgui.TableSetupColumn("Since")
	imgui.TableSetupColumn("Path")
	imgui.TableHeadersRow()

	for _, row := range p.rows() {
		e := row.Entry
		imgui.TableNextRow()
		imgui.TableNextColumn()
		if imgui.SelectableBoolV(fmt.Sprintf("%d", e.Entity), p.selected == e.Entity, imgui.SelectableFlagsSpanAllColumns, imgui.NewVec2(0, 0)) {
			p.selected = e.Entity
		}
		imgui.TableNextColumn()
		if e.Handle != 0 {
			imgui.Text(fmt.Sprintf("%d", e.Handle))
		} else {
			imgui.Text("-")
		}
		imgui.TableNextColumn()
		label := e.State.String()
		if row.Stalled {
			label += " (stalled)"
		}
		imgui.TextColored(stateColors[e.State], label)
		imgui.TableNextColumn()
		imgui.Text(fmt.Sprintf("%d", e.Since))
		imgui.TableNextColumn()
		if row.HasAgent {
			imgui.Text(row.Status.String())
		}
	}
	imgui.EndTable()

	if p.selected != 0 {
		if _, ok := p.bridge.Mirror().Entry(p.selected); ok && imgui.Button("Retry spawn") {
			p.bridge.RetrySpawn(p.selected)
		}
	}
}

func (p *BridgePanel) renderWarnings() {
	if len(p.warnings) == 0 {
		imgui.Text("No warnings")
		return
	}
	for i := len(p.warnings) - 1; i >= 0; i-- {
		w := p.warnings[i]
		imgui.BulletText(fmt.Sprintf("entity %d: %s after %d attempts: %v", w.Entity, w.Kind, w.Attempts, w.Err))
	}
}
