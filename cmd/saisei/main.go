package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashita-ai/saisei"
	"github.com/ashita-ai/saisei/internal/config"
	"github.com/ashita-ai/saisei/internal/sentinel"
	"github.com/ashita-ai/saisei/internal/wal"
	"github.com/ashita-ai/saisei/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "saisei",
		Short:         "Logical-replication catch-up applier",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(catchupCmd(), sentinelCmd(), versionCmd())
	return root
}

func catchupCmd() *cobra.Command {
	var (
		sourceURI string
		targetURI string
		origin    string
		dir       string
		endpos    string
		prefetch  bool
	)

	cmd := &cobra.Command{
		Use:   "catchup",
		Short: "Replay prepared SQL files onto the target database",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []saisei.Option{saisei.WithVersion(version)}
			if sourceURI != "" {
				opts = append(opts, saisei.WithSourceURI(sourceURI))
			}
			if targetURI != "" {
				opts = append(opts, saisei.WithTargetURI(targetURI))
			}
			if origin != "" {
				opts = append(opts, saisei.WithOrigin(origin))
			}
			if dir != "" {
				opts = append(opts, saisei.WithDir(dir))
			}
			if endpos != "" {
				opts = append(opts, saisei.WithEndpos(endpos))
			}
			if cmd.Flags().Changed("prefetch") {
				opts = append(opts, saisei.WithPrefetch(prefetch))
			}
			return saisei.Run(cmd.Context(), opts...)
		},
	}

	cmd.Flags().StringVar(&sourceURI, "source", "", "source connection string (SAISEI_SOURCE_PGURI)")
	cmd.Flags().StringVar(&targetURI, "target", "", "target connection string (SAISEI_TARGET_PGURI)")
	cmd.Flags().StringVar(&origin, "origin", "", "replication origin name (SAISEI_ORIGIN)")
	cmd.Flags().StringVar(&dir, "dir", "", "directory with the prepared SQL files (SAISEI_DIR)")
	cmd.Flags().StringVar(&endpos, "endpos", "", "stop once the origin reaches this LSN")
	cmd.Flags().BoolVar(&prefetch, "prefetch", false, "wait for the sentinel apply gate before replaying")

	return cmd
}

func sentinelCmd() *cobra.Command {
	var sourceURI string

	cmd := &cobra.Command{
		Use:   "sentinel",
		Short: "Inspect and drive the control record on the source database",
	}
	cmd.PersistentFlags().StringVar(&sourceURI, "source", "", "source connection string (SAISEI_SOURCE_PGURI)")

	client := func() (*sentinel.Client, error) {
		_ = godotenv.Load()
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		if sourceURI != "" {
			cfg.SourceURI = sourceURI
		}
		if cfg.SourceURI == "" {
			return nil, fmt.Errorf("a source connection string is required (--source or SAISEI_SOURCE_PGURI)")
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: saisei.ParseLogLevel(cfg.LogLevel),
		}))
		return sentinel.NewClient(cfg.SourceURI, logger), nil
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Install the sentinel schema on the source database",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			return c.Create(cmd.Context(), migrations.FS)
		},
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Print the sentinel values",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			v, err := c.Get(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("startpos   %s\n", v.Startpos)
			fmt.Printf("endpos     %s\n", v.Endpos)
			fmt.Printf("apply      %t\n", v.Apply)
			fmt.Printf("write_lsn  %s\n", v.WriteLSN)
			fmt.Printf("flush_lsn  %s\n", v.FlushLSN)
			fmt.Printf("replay_lsn %s\n", v.ReplayLSN)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set",
		Short: "Update sentinel control fields",
	}
	set.AddCommand(
		setEndposCmd(client),
		setStartposCmd(client),
		setApplyCmd(client),
	)

	cmd.AddCommand(create, get, set)
	return cmd
}

func setEndposCmd(client func() (*sentinel.Client, error)) *cobra.Command {
	var current bool

	cmd := &cobra.Command{
		Use:   "endpos [lsn]",
		Short: "Set the end position, or resolve it from the current WAL flush position",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if current == (len(args) == 1) {
				return fmt.Errorf("exactly one of an LSN argument or --current is required")
			}
			var lsn wal.LSN
			if len(args) == 1 {
				var err error
				if lsn, err = wal.ParseLSN(args[0]); err != nil {
					return err
				}
			}
			c, err := client()
			if err != nil {
				return err
			}
			stored, err := c.SetEndpos(cmd.Context(), lsn, current)
			if err != nil {
				return err
			}
			fmt.Printf("endpos %s\n", stored)
			return nil
		},
	}
	cmd.Flags().BoolVar(&current, "current", false, "use pg_current_wal_flush_lsn() on the source")
	return cmd
}

func setStartposCmd(client func() (*sentinel.Client, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "startpos <lsn>",
		Short: "Set the start position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lsn, err := wal.ParseLSN(args[0])
			if err != nil {
				return err
			}
			c, err := client()
			if err != nil {
				return err
			}
			return c.SetStartpos(cmd.Context(), lsn)
		},
	}
}

func setApplyCmd(client func() (*sentinel.Client, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <true|false>",
		Short: "Open or close the apply gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch args[0] {
			case "true", "on":
				enabled = true
			case "false", "off":
			default:
				return fmt.Errorf("invalid apply value %q (want true or false)", args[0])
			}
			c, err := client()
			if err != nil {
				return err
			}
			return c.SetApply(cmd.Context(), enabled)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the saisei version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}
