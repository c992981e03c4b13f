package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-countdown/internal/domain"
	"github.com/ramiqadoumi/go-countdown/internal/engine"
	"github.com/ramiqadoumi/go-countdown/internal/notify"
	"github.com/ramiqadoumi/go-countdown/internal/schedule"
	"github.com/ramiqadoumi/go-countdown/services/timerd/config"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Drive an in-process timer engine from an interactive prompt",
	Long: `Start a timer engine inside this process and control it from a prompt.
Notifications are printed as they arrive. Nothing is exported to Kafka, Redis,
PostgreSQL or webhooks; presets from presets_file are loaded.`,
	PreRun: func(cmd *cobra.Command, _ []string) {
		bindFlag("tick_interval", cmd.Flags(), "tick-interval")
		bindFlag("max_timers", cmd.Flags(), "max-timers")
		bindFlag("presets_file", cmd.Flags(), "presets")
	},
	RunE: runConsole,
}

func init() {
	consoleCmd.Flags().Duration("tick-interval", engine.DefaultTickInterval, "progress notification period of a running timer")
	consoleCmd.Flags().Int("max-timers", 0, "maximum number of timers; 0 is unlimited, 1 is single-timer mode")
	consoleCmd.Flags().String("presets", "", "YAML file of preset timers")
}

func runConsole(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())

	rlCfg := &readline.Config{
		Prompt:          "timer> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    shellCompleter(),
	}
	if home, err := os.UserHomeDir(); err == nil {
		rlCfg.HistoryFile = filepath.Join(home, ".go-countdown", "console_history")
	}
	rl, err := readline.NewEx(rlCfg)
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	// Log lines share the terminal with the prompt; keep them to warnings.
	logger := slog.New(slog.NewTextHandler(rl.Stderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	eng := engine.New(printSink(rl.Stdout()),
		engine.WithLogger(logger),
		engine.WithTickInterval(cfg.TickInterval),
		engine.WithMaxTimers(cfg.MaxTimers),
	)
	defer eng.Close()

	presets, err := schedule.LoadFile(cfg.PresetsFile)
	if err != nil {
		return err
	}
	sched := schedule.NewScheduler(eng, presets, logger)
	if err := sched.Seed(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	sh := &shell{eng: eng, out: rl.Stdout()}
	sh.help()
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return nil
		}
		if quit := sh.exec(strings.Fields(line)); quit {
			return nil
		}
	}
}

// printSink writes notifications to the console.
func printSink(out io.Writer) notify.Sink {
	return notify.Funcs{
		OnProgress: func(_ context.Context, p domain.Progress) error {
			state := "paused"
			if p.Running {
				state = "running"
			}
			_, err := fmt.Fprintf(out, "  [%s] %s %s\n", p.TimerID, formatMs(p.RemainingMs), state)
			return err
		},
		OnCompletion: func(_ context.Context, c domain.Completion) error {
			_, err := fmt.Fprintf(out, "  [%s] done at %s\n", c.TimerID, c.FinishedAt)
			return err
		},
	}
}

// shell executes one console command at a time against the engine.
type shell struct {
	eng *engine.Engine
	out io.Writer
}

func shellCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("create"),
		readline.PcItem("list"),
		readline.PcItem("get"),
		readline.PcItem("start"),
		readline.PcItem("pause"),
		readline.PcItem("resume"),
		readline.PcItem("reset"),
		readline.PcItem("delete"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}

func (s *shell) help() {
	fmt.Fprintln(s.out, `Commands:
  create <id> <duration> [name]  - register a timer (duration: 1500, 90s, 25m)
  list                           - show every timer
  get <id>                       - show one timer
  start|pause|resume|reset <id>  - control a timer
  delete <id>                    - remove a timer
  help                           - show this help
  quit                           - exit`)
}

// exec runs one command line and reports whether the console should exit.
func (s *shell) exec(args []string) bool {
	if len(args) == 0 {
		return false
	}
	cmd, args := strings.ToLower(args[0]), args[1:]

	var err error
	switch cmd {
	case "help", "?":
		s.help()
	case "quit", "exit", "q":
		return true
	case "list", "ls":
		s.list(s.eng.List())
	case "create", "new":
		err = s.create(args)
	case "get":
		err = s.withID(args, func(id string) error {
			t, err := s.eng.Get(id)
			if err == nil {
				s.list([]domain.Timer{t})
			}
			return err
		})
	case "start":
		err = s.withID(args, s.eng.Start)
	case "pause":
		err = s.withID(args, s.eng.Pause)
	case "resume":
		err = s.withID(args, s.eng.Resume)
	case "reset":
		err = s.withID(args, s.eng.Reset)
	case "delete", "rm":
		err = s.withID(args, s.eng.Delete)
	default:
		err = fmt.Errorf("unknown command %q (type 'help' for commands)", cmd)
	}
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
	}
	return false
}

func (s *shell) create(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: create <id> <duration> [name]")
	}
	ms, err := parseDurationMs(args[1])
	if err != nil {
		return err
	}
	name := strings.Join(args[2:], " ")
	t, err := s.eng.Create(args[0], name, ms)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "created %s (%s)\n", t.ID, formatMs(t.DurationMs))
	return nil
}

func (s *shell) withID(args []string, fn func(id string) error) error {
	if len(args) != 1 {
		return errors.New("expected exactly one timer id")
	}
	return fn(args[0])
}

func (s *shell) list(timers []domain.Timer) {
	if len(timers) == 0 {
		fmt.Fprintln(s.out, "no timers")
		return
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATE\tREMAINING\tDURATION")
	for _, t := range timers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Name, t.State(), formatMs(t.RemainingMs), formatMs(t.DurationMs))
	}
	_ = tw.Flush()
}

// parseDurationMs accepts plain milliseconds or a Go duration string.
func parseDurationMs(s string) (int64, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d.Milliseconds(), nil
}

func formatMs(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}
