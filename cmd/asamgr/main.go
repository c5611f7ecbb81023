package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root, cli := buildRoot()
	err := root.ExecuteContext(ctx)
	if err != nil && inBackground() {
		// The background child has no terminal; the log file is its only output.
		slog.Error("Command failed", "command", os.Args[1:], "error", err)
	}
	cli.close()
	stop()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and the state its subcommands share.
func buildRoot() (*cobra.Command, *command) {
	globalFlags := &GlobalFlags{}
	cli := &command{global: globalFlags, out: os.Stdout}

	root := createRootCommand(globalFlags, cli)
	root.AddCommand(
		createStartCommand(cli),
		createStopCommand(cli),
		createRestartCommand(cli),
		createUpdateCommand(cli),
		createBackupCommand(cli),
		createRestoreCommand(cli),
		createStatusCommand(cli),
		createRCONCommand(cli),
		createEOSCredentialsCommand(cli),
	)
	return root, cli
}

func createRootCommand(flags *GlobalFlags, cli *command) *cobra.Command {
	root := &cobra.Command{
		Use:   "asamgr",
		Short: "ARK: Survival Ascended dedicated server manager",
		Long: `asamgr starts, stops, updates and backs up one ARK: Survival Ascended
dedicated server running under proton.

Examples:
  asamgr start
  asamgr restart --warn --saveworld
  asamgr status --full
  asamgr rcon ListPlayers`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return cli.open()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", "./config.toml", "path to the TOML config file")
	root.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "log debug messages to the console")
	return root
}

func createStartCommand(cli *command) *cobra.Command {
	f := &StartFlags{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the server",
		Long: `Update the server files (unless --no-autoupdate), write the INI files and
start the server, waiting until it listens on its game port.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Start(cmd.Context(), *f)
		},
	}
	cmd.Flags().BoolVar(&f.Clean, "clean", false, "kill any recorded server and truncate the PID, schedule and log files first")
	cmd.Flags().BoolVar(&f.NoAutoUpdate, "no-autoupdate", false, "skip the steamcmd update before starting")
	return cmd
}

func createStopCommand(cli *command) *cobra.Command {
	f := &StopFlags{}
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the server",
		Long: `Stop the server with DoExit, killing its process group when it does not
exit in time. With --warn the configured warnings are broadcast first from a
background process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Stop(cmd.Context(), *f)
		},
	}
	cmd.Flags().BoolVar(&f.Warn, "warn", false, "broadcast the stop warnings before stopping")
	cmd.Flags().BoolVar(&f.SaveWorld, "saveworld", false, "save the world before stopping")
	cmd.Flags().BoolVar(&f.Foreground, "foreground", false, "run the warning countdown in this process")
	return cmd
}

func createRestartCommand(cli *command) *cobra.Command {
	f := &RestartFlags{}
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Restart(cmd.Context(), *f)
		},
	}
	cmd.Flags().BoolVar(&f.Warn, "warn", false, "broadcast the restart warnings before restarting")
	cmd.Flags().BoolVar(&f.SaveWorld, "saveworld", false, "save the world before stopping")
	cmd.Flags().BoolVar(&f.NoAutoUpdate, "no-autoupdate", false, "skip the steamcmd update before starting")
	cmd.Flags().BoolVar(&f.Foreground, "foreground", false, "run the warning countdown in this process")
	return cmd
}

func createUpdateCommand(cli *command) *cobra.Command {
	f := &UpdateFlags{}
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Install or update the server files",
		Long: `Run steamcmd for the configured app id. A running server is stopped first
(after confirmation unless --force or --warn) and started again afterwards
unless --no-autostart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Update(cmd.Context(), *f)
		},
	}
	cmd.Flags().BoolVar(&f.Force, "force", false, "stop a running server without asking")
	cmd.Flags().BoolVar(&f.NoAutoStart, "no-autostart", false, "leave the server stopped after the update")
	cmd.Flags().BoolVar(&f.SaveWorld, "saveworld", false, "save the world before stopping")
	cmd.Flags().BoolVar(&f.Warn, "warn", false, "broadcast the update warnings before stopping")
	cmd.Flags().BoolVar(&f.Foreground, "foreground", false, "run the warning countdown in this process")
	return cmd
}

func createBackupCommand(cli *command) *cobra.Command {
	f := &BackupFlags{}
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the configured save files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := cli.mgr.Config().Ark.Backup.CompressionLevel
			if cmd.Flags().Changed("compression-level") {
				level = f.CompressionLevel
			}
			return cli.Backup(cmd.Context(), level)
		},
	}
	cmd.Flags().IntVar(&f.CompressionLevel, "compression-level", 6, "gzip level from -1 to 9 (default from ark.backup.compression_level)")
	return cmd
}

func createRestoreCommand(cli *command) *cobra.Command {
	f := &RestoreFlags{}
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore a backup archive onto the install folder",
		Long: `Extract a backup over the install folder. Without --latest or --path the
available archives are listed and one is chosen interactively.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Restore(cmd.Context(), *f)
		},
	}
	cmd.Flags().BoolVar(&f.Latest, "latest", false, "restore the newest archive")
	cmd.Flags().StringVar(&f.Path, "path", "", "restore the archive at this path")
	cmd.MarkFlagsMutuallyExclusive("latest", "path")
	return cmd
}

func createStatusCommand(cli *command) *cobra.Command {
	f := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the server status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Status(cmd.Context(), *f)
		},
	}
	cmd.Flags().BoolVar(&f.Full, "full", false, "also look the server up in the EOS server list")
	return cmd
}

func createRCONCommand(cli *command) *cobra.Command {
	f := &RCONFlags{}
	cmd := &cobra.Command{
		Use:   "rcon <command...>",
		Short: "Send a console command to the server",
		Example: `  asamgr rcon ListPlayers
  asamgr rcon ServerChat "hello" -i 10.0.0.2 -p 27020`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RCON(cmd.Context(), *f, args)
		},
	}
	cmd.Flags().StringVarP(&f.IP, "ip", "i", "", "RCON address (default from config)")
	cmd.Flags().IntVarP(&f.Port, "port", "p", 0, "RCON port (default from config)")
	return cmd
}

func createEOSCredentialsCommand(cli *command) *cobra.Command {
	f := &EOSCredentialsFlags{}
	cmd := &cobra.Command{
		Use:   "eos-credentials",
		Short: "Write the EOS credentials used by status --full",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.EOSCredentials(*f)
		},
	}
	cmd.Flags().StringVar(&f.ClientID, "client-id", "", "dedicated server client id (required)")
	cmd.Flags().StringVar(&f.ClientSecret, "client-secret", "", "dedicated server client secret (required)")
	cmd.Flags().StringVar(&f.DeploymentID, "deployment-id", "", "EOS deployment id (required)")
	for _, name := range []string{"client-id", "client-secret", "deployment-id"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}
	return cmd
}
