package main

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/profile"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/plus3/navbridge/bridge"
	"github.com/plus3/navbridge/config"
	"github.com/plus3/navbridge/sim"
)

type options struct {
	configPath     string
	duration       time.Duration
	agents         int
	prefab         string
	churn          float64
	despawn        float64
	arena          float64
	seed           uint64
	profile        string
	logLevel       string
	gcPauseMetrics bool
}

func optionsFrom(v *viper.Viper) options {
	return options{
		configPath:     v.GetString("config"),
		duration:       v.GetDuration("duration"),
		agents:         v.GetInt("agents"),
		prefab:         v.GetString("prefab"),
		churn:          v.GetFloat64("churn"),
		despawn:        v.GetFloat64("despawn"),
		arena:          v.GetFloat64("arena"),
		seed:           v.GetUint64("seed"),
		profile:        v.GetString("profile"),
		logLevel:       v.GetString("log-level"),
		gcPauseMetrics: v.GetBool("gc-pause-metrics"),
	}
}

type runFunc func(ctx context.Context, opts options, stdout, stderr io.Writer) error

func newRootCmd() *cobra.Command {
	return newCommand(run)
}

func newCommand(fn runFunc) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "navbridge-stress",
		Short: "Stress the navigation bridge with churning agents",
		Long: `navbridge-stress spawns a population of navigation agents, keeps them
walking to random goals, and continually deletes, respawns and despawns them
from both sides of the bridge. It prints a report of frame and tick costs.

Every flag can also be set through the environment, e.g. NAVBRIDGE_AGENTS.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return fn(cmd.Context(), optionsFrom(v), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringP("config", "c", "", "YAML configuration file (defaults are used when empty)")
	f.Duration("duration", 10*time.Second, "how long to run")
	f.Int("agents", 5000, "agent population to maintain")
	f.String("prefab", "", "prefab to spawn (default: cycle through all prefabs)")
	f.Float64("churn", 0.05, "fraction of agents deleted from the ECS side per second")
	f.Float64("despawn", 20, "agents despawned from the host side per second")
	f.Float64("arena", 200, "side length of the square agents walk in")
	f.Uint64("seed", 1, "random seed")
	f.String("profile", "", "write a profile: cpu or mem")
	f.String("log-level", "warn", "log level (trace, debug, info, warn, error)")
	f.Bool("gc-pause-metrics", false, "include GC pause totals in the report")
	_ = v.BindPFlags(f)

	v.SetEnvPrefix("NAVBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd
}

func newLogger(level string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}).
		Level(lvl).
		With().
		Timestamp().
		Logger(), nil
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	log, err := newLogger(opts.logLevel, stderr)
	if err != nil {
		return err
	}

	switch opts.profile {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	default:
		return fmt.Errorf("unknown profile %q (want cpu or mem)", opts.profile)
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.agents > cfg.Bridge.MirrorCapacity {
		cfg.Bridge.MirrorCapacity = opts.agents
	}

	prefabs := cfg.PrefabNames()
	if opts.prefab != "" {
		if _, ok := cfg.Prefab(opts.prefab); !ok {
			return fmt.Errorf("unknown prefab %q (have %s)", opts.prefab, strings.Join(prefabs, ", "))
		}
		prefabs = []string{opts.prefab}
	}

	chaos := newChaos(opts, prefabs)
	s, err := sim.New(cfg, log, chaos)
	if err != nil {
		return err
	}
	chaos.attach(s)

	report := &Report{
		Duration:       opts.duration,
		Agents:         opts.agents,
		Prefabs:        prefabs,
		Churn:          opts.churn,
		Despawn:        opts.despawn,
		GCPauseMetrics: opts.gcPauseMetrics,
	}
	s.Sync.OnTick(func(r bridge.Report, _ error) {
		report.TickTime.Samples = append(report.TickTime.Samples, r.Duration)
	})

	runtime.ReadMemStats(&report.MemStatsStart)
	log.Info().Int("agents", opts.agents).Dur("duration", opts.duration).Msg("stress run starting")

	ctx, cancel := context.WithTimeout(ctx, opts.duration)
	defer cancel()

	start := time.Now()
	last := start
	var runErr error

Loop:
	for {
		select {
		case <-ctx.Done():
			break Loop
		default:
			dt := time.Since(last)
			last = time.Now()

			updateStart := time.Now()
			_, runErr = s.Once(dt.Seconds())
			report.UpdateTime.Samples = append(report.UpdateTime.Samples, time.Since(updateStart))
			report.Frames++
			if runErr != nil {
				break Loop
			}
		}
	}

	report.TotalTime = time.Since(start)
	report.UpdateTime.Finalize()
	report.TickTime.Finalize()
	runtime.ReadMemStats(&report.MemStatsEnd)
	report.collect(s, chaos)

	log.Info().Int64("frames", report.Frames).Msg("stress run finished")
	if err := report.Generate(stdout); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return runErr
}
