package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "TUGOFWAR"

type Config struct {
	Bind            string
	Port            int
	AdminCode       string
	PublicURL       string
	AllowedOrigins  []string
	RoomIdleTimeout time.Duration
	ReapSchedule    string
	DatabaseURL     string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if c.RoomIdleTimeout < 0 {
		return errors.New("--room-idle-timeout must not be negative")
	}
	if c.ShutdownTimeout < 0 {
		return errors.New("--shutdown-timeout must not be negative")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q (want json or console)", c.LogFormat)
	}
	if c.RoomIdleTimeout > 0 {
		if _, err := cron.ParseStandard(c.ReapSchedule); err != nil {
			return fmt.Errorf("invalid --reap-schedule %q: %w", c.ReapSchedule, err)
		}
	}
	return nil
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// NewCommand builds the root command. Values come from flags first, then
// TUGOFWAR_* environment variables, then a .env file if one exists.
func NewCommand(cfg *Config, version string, run func(cmd *cobra.Command, cfg *Config) error) *cobra.Command {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "tugofwar",
		Short:         "Realtime coordinator for tug-of-war quiz rooms.",
		Args:          cobra.ExactArgs(0),
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: TUGOFWAR_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 5000, "port to listen on (env: TUGOFWAR_PORT)")
	fs.StringVar(&cfg.AdminCode, "admin-code", "", "access code required to create rooms and join as admin; empty leaves both open (env: TUGOFWAR_ADMIN_CODE)")
	fs.StringVar(&cfg.PublicURL, "public-url", "", "base URL used in team join links; derived from the request when empty (env: TUGOFWAR_PUBLIC_URL)")
	fs.StringSliceVar(&cfg.AllowedOrigins, "allowed-origins", []string{"*"}, "CORS and websocket origins (env: TUGOFWAR_ALLOWED_ORIGINS)")
	fs.DurationVar(&cfg.RoomIdleTimeout, "room-idle-timeout", 0, "remove rooms idle for this long; 0 keeps rooms forever (env: TUGOFWAR_ROOM_IDLE_TIMEOUT)")
	fs.StringVar(&cfg.ReapSchedule, "reap-schedule", "@every 1m", "cron schedule for idle room sweeps (env: TUGOFWAR_REAP_SCHEDULE)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "postgres DSN for the finished match archive; empty disables it (env: TUGOFWAR_DATABASE_URL)")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "debug, info, warn or error (env: TUGOFWAR_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format", "json", "json or console (env: TUGOFWAR_LOG_FORMAT)")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", 5*time.Second, "grace period for in-flight requests on shutdown (env: TUGOFWAR_SHUTDOWN_TIMEOUT)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, v.GetString(f.Name))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("tugofwar v{{.Version}}\n")

	return cmd
}
