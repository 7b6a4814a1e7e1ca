package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/chime/internal/backup"
	"github.com/julianstephens/chime/internal/cli"
	"github.com/julianstephens/chime/internal/cli/backups"
	"github.com/julianstephens/chime/internal/cli/reminders"
	"github.com/julianstephens/chime/internal/cli/system"
	"github.com/julianstephens/chime/internal/config"
	"github.com/julianstephens/chime/internal/constants"
	apperrors "github.com/julianstephens/chime/internal/errors"
	"github.com/julianstephens/chime/internal/logger"
	"github.com/julianstephens/chime/internal/notifier"
	"github.com/julianstephens/chime/internal/storage"
)

var CLI struct {
	Version      kong.VersionFlag
	Store        string  `help:"Store location: a .db/.sqlite file, a directory of JSON files, memory: or a PostgreSQL URL without a password. Defaults to the keyring connection, then ${default_store}." env:"CHIME_STORE"`
	ConfigDir    string  `help:"Directory for logs and backups." env:"CHIME_CONFIG_DIR" default:"${config_dir}"`
	Debug        bool    `help:"Enable debug logging." env:"CHIME_DEBUG"`
	Timezone     string  `help:"IANA time zone reminders fire in. Defaults to the system zone." env:"CHIME_TZ"`
	DryRun       bool    `help:"Print notifications to stdout instead of sending them to the tray app." env:"CHIME_DRY_RUN"`
	DeliveryRate float64 `help:"Maximum notifications delivered per second. 0 disables the limit." env:"CHIME_DELIVERY_RATE" default:"${delivery_rate}"`

	Add     reminders.AddCmd     `cmd:"" help:"Add a reminder."`
	Edit    reminders.EditCmd    `cmd:"" help:"Edit a reminder."`
	List    reminders.ListCmd    `cmd:"" help:"List reminders." default:"1"`
	Show    reminders.ShowCmd    `cmd:"" help:"Show a reminder's trigger state."`
	Enable  reminders.EnableCmd  `cmd:"" help:"Enable reminders."`
	Disable reminders.DisableCmd `cmd:"" help:"Disable reminders."`
	Delete  reminders.DeleteCmd  `cmd:"" help:"Delete reminders (undoable until purged)."`
	Undo    reminders.UndoCmd    `cmd:"" help:"Restore reminders removed by a delete."`
	Purge   reminders.PurgeCmd   `cmd:"" help:"Permanently remove deleted reminders."`
	Ack     reminders.AckCmd     `cmd:"" help:"Acknowledge reminders, stopping continuous alerts."`
	Run     system.RunCmd        `cmd:"" help:"Fire due reminders and deliver notifications once."`
	Next    system.NextCmd       `cmd:"" help:"Show the next reminder to fire."`
	Daemon  system.DaemonCmd     `cmd:"" help:"Fire reminders until interrupted."`
	Backup  struct {
		Create  backups.BackupCreateCmd  `cmd:"" help:"Snapshot all reminders." default:"1"`
		List    backups.BackupListCmd    `cmd:"" help:"List available snapshots."`
		Restore backups.BackupRestoreCmd `cmd:"" help:"Replace all reminders with a snapshot."`
	} `cmd:"" help:"Manage reminder snapshots."`
	Keyring struct {
		Set    system.KeyringSetCmd    `cmd:"" help:"Store a PostgreSQL connection URL in the OS keyring."`
		Get    system.KeyringGetCmd    `cmd:"" help:"Show the stored connection URL with the password masked."`
		Delete system.KeyringDeleteCmd `cmd:"" help:"Remove the stored connection URL."`
		Status system.KeyringStatusCmd `cmd:"" help:"Check OS keyring availability."`
	} `cmd:"" help:"Manage the store connection kept in the OS keyring."`
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	ctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Recurring reminders with continuous alerts"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version":       constants.Version,
			"default_store": constants.DefaultStorePath,
			"config_dir":    constants.DefaultConfigDir,
			"delivery_rate": strconv.Itoa(constants.DefaultDeliveryRate),
			"sweep":         constants.DefaultSweepSpec,
		},
	)

	command := ctx.Command()
	isDaemon := strings.HasPrefix(command, "daemon")

	configDir, err := config.ResolveConfigDir(CLI.ConfigDir)
	if err != nil {
		apperrors.Fatal(err)
	}
	if err := logger.Init(logger.Config{Debug: CLI.Debug, ConfigDir: configDir, Quiet: isDaemon}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}

	loc, err := config.LoadLocation(CLI.Timezone)
	if err != nil {
		apperrors.Fatal(err)
	}
	time.Local = loc

	base, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Keyring commands manage the store location and must work without one.
	if strings.HasPrefix(command, "keyring") {
		err := ctx.Run(&cli.Context{Base: base, Out: os.Stdout})
		stop()
		apperrors.Fatal(err)
		return
	}

	dsn, err := config.ResolveStore(CLI.Store)
	if err != nil {
		apperrors.Fatal(err)
	}
	store, err := storage.Open(dsn)
	if err != nil {
		apperrors.Fatal(fmt.Errorf("failed to open store: %w", err))
	}
	defer store.Close()

	var sender notifier.Sender = notifier.NewTraySender()
	if CLI.DryRun {
		sender = &notifier.StdoutSender{W: os.Stdout}
	}

	appCtx := cli.NewContext(store, sender, CLI.DeliveryRate, time.Now)
	appCtx.Base = base
	appCtx.Backups = backup.NewManager(configDir)
	appCtx.DisableLapsed(base)

	if err := ctx.Run(appCtx); err != nil {
		store.Close()
		stop()
		apperrors.Fatal(err)
	}
}
