// Package cli implements the timerd command tree.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const serviceName = "timerd"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "Concurrent countdown-timer service",
	Long: `timerd keeps a registry of countdown timers, ticks every running one on its
own goroutine and publishes progress and completion notifications to the
configured sinks (log, Kafka, Redis, PostgreSQL, webhook).

Configuration priority: CLI flag > environment > config file > default.`,
	SilenceUsage:      true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return initConfig() },
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./timerd.yaml, ~/.go-countdown/timerd.yaml, /etc/go-countdown/timerd.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug | info | warn | error")
	bindFlag("log_level", rootCmd.PersistentFlags(), "log-level")

	viper.SetDefault("tick_interval", "1s")
	viper.SetDefault("notify_timeout", "5s")
	viper.SetDefault("max_timers", 0)
	viper.SetDefault("kafka_encoding", "json")
	viper.SetDefault("state_ttl", "24h")
	viper.SetDefault("webhook_retries", 3)

	rootCmd.AddCommand(
		serveCmd,
		newInitCmd(serviceName, defaultTimerdYAML),
		migrateCmd,
		watchCmd,
		consoleCmd,
		versionCmd,
	)
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(serviceName)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".go-countdown"))
		}
		viper.AddConfigPath("/etc/go-countdown")
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// bindFlag binds a viper key to a pflag, panicking on programmer error.
func bindFlag(key string, flags *pflag.FlagSet, name string) {
	if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
		panic(fmt.Sprintf("bind flag %q: %v", name, err))
	}
}

// buildLogger returns a JSON slog logger tagged with the service name.
func buildLogger(level, service string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})).
		With(slog.String("service", service))
}
