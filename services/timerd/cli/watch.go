package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-countdown/internal/kafka"
	"github.com/ramiqadoumi/go-countdown/internal/notify"
	"github.com/ramiqadoumi/go-countdown/services/timerd/config"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Tail timer notifications from Kafka",
	Long: `Join a consumer group on the progress and completion topics and print
every notification. Without --group a throwaway group is used, so every
watcher sees every event.`,
	PreRun: func(cmd *cobra.Command, _ []string) {
		bindFlag("kafka_brokers", cmd.Flags(), "kafka-brokers")
	},
	RunE: runWatch,
}

func init() {
	f := watchCmd.Flags()
	f.String("kafka-brokers", "localhost:9092", "comma-separated Kafka broker addresses")
	f.String("group", "", "consumer group id (default: a random one)")
	f.String("timer", "", "only show events for this timer id")
	f.Bool("from-start", false, "read each topic from its first offset")
	f.Bool("json", false, "print events as JSON lines")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, serviceName+"-watch")

	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return errors.New("kafka_brokers is not set")
	}
	group, _ := cmd.Flags().GetString("group")
	if group == "" {
		group = "timerd-watch-" + uuid.New().String()[:8]
	}
	fromStart, _ := cmd.Flags().GetBool("from-start")
	only, _ := cmd.Flags().GetString("timer")
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	consumer := kafka.NewConsumer(brokers, []string{notify.TopicProgress, notify.TopicCompleted}, group, fromStart, logger)
	defer func() { _ = consumer.Close() }()

	logger.Info("watching", slog.String("group", group), slog.Any("brokers", brokers))
	printEvent := eventPrinter(cmd.OutOrStdout(), only, asJSON)
	return consumer.Subscribe(ctx, func(_ context.Context, msg kafka.Message) error {
		ev, err := notify.DecodeEvent(msg)
		if err != nil {
			// Undecodable events are skipped, not redelivered forever.
			logger.Warn("skipping event", slog.Int64("offset", msg.Offset), slog.String("error", err.Error()))
			return nil
		}
		return printEvent(ev)
	})
}

// eventPrinter renders decoded events, dropping those for other timers when
// only is set.
func eventPrinter(out io.Writer, only string, asJSON bool) func(notify.Event) error {
	enc := json.NewEncoder(out)
	return func(ev notify.Event) error {
		var id string
		var payload any
		switch {
		case ev.Progress != nil:
			id, payload = ev.Progress.TimerID, ev.Progress
		case ev.Completion != nil:
			id, payload = ev.Completion.TimerID, ev.Completion
		default:
			return nil
		}
		if only != "" && id != only {
			return nil
		}
		if asJSON {
			return enc.Encode(map[string]any{"kind": ev.Kind, "event": payload})
		}
		if p := ev.Progress; p != nil {
			_, err := fmt.Fprintf(out, "%-10s %s remaining=%s running=%t\n", ev.Kind, p.TimerID, formatMs(p.RemainingMs), p.Running)
			return err
		}
		_, err := fmt.Fprintf(out, "%-10s %s finished_at=%s\n", ev.Kind, id, ev.Completion.FinishedAt)
		return err
	}
}
