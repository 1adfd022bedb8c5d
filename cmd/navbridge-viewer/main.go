// Command navbridge-viewer shows a live navigation simulation with a debug
// overlay. Left click sends the selected agents (or all agents) to the cursor,
// right click spawns an agent, D despawns a random agent from the host side
// and Delete removes the selected agent from the ECS side.
package main

import (
	"context"
	"os"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/plus3/navbridge/config"
	"github.com/plus3/navbridge/debugui"
	debugui_ebiten "github.com/plus3/navbridge/debugui/ebiten"
	"github.com/plus3/navbridge/ecs"
	"github.com/plus3/navbridge/sim"
)

const (
	screenWidth  = 1280
	screenHeight = 720
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:          "navbridge-viewer",
		Short:        "Watch and poke a live navigation simulation",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(v.GetString("config"), v.GetInt("agents"), v.GetString("log-level"))
		},
	}

	f := cmd.Flags()
	f.StringP("config", "c", "", "YAML configuration file, reloaded when it changes")
	f.Int("agents", 50, "agents spawned at startup")
	f.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	_ = v.BindPFlags(f)

	v.SetEnvPrefix("NAVBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd
}

func run(configPath string, agents int, level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()

	cfg := config.Default()
	var watcher *config.Watcher
	if configPath != "" {
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		if watcher, err = config.NewWatcher(configPath); err != nil {
			return err
		}
		defer watcher.Close()
	}

	backend := debugui_ebiten.NewImguiBackend("Navigation Bridge Viewer", screenWidth, screenHeight)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	camera := &Camera{Scale: 8, ScreenW: screenWidth, ScreenH: screenHeight}
	input := &InputSystem{camera: camera}
	s, err := sim.New(cfg, log, input)
	if err != nil {
		return err
	}
	input.attach(s)

	debugui.RegisterComponents(s.Registry)
	ecs.NewSingleton[debugui.ImguiInputState](s.Storage)
	s.Scheduler.Register(&debugui.ImguiSystem{})

	panel := debugui.NewBridgePanel(s.Bridge, s.Host, 240)
	panel.Spawn(s.Storage)
	s.Sync.OnTick(panel.Observe)

	populate(s, agents, log)

	game := &Game{
		sim:     s,
		backend: backend,
		camera:  camera,
		input:   input,
		watcher: watcher,
		log:     log,
	}
	return ebiten.RunGame(game)
}
