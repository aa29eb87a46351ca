package main

import (
	"context"
	"os"
	"time"
	_ "time/tzdata"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"lunarcal/internal/agenda"
	"lunarcal/internal/config"
	appLog "lunarcal/internal/log"
	"lunarcal/internal/store"
)

var version = "0.1.0-dev"

// app is the state shared by all subcommands once the config is loaded.
type app struct {
	configPath string
	dbPath     string

	conf *config.Config
	loc  *time.Location
	now  func() time.Time
}

func main() {
	if err := newRootCmd(&app{now: time.Now}).Execute(); err != nil {
		appLog.Error("lunarcal failed", err)
		_ = appLog.Sync()
		os.Exit(1)
	}
	_ = appLog.Sync()
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "lunarcal",
		Short:         "Calendar with lunar dates, to-do events and reminders",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath(), "Path to config file")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database file (overrides config)")

	root.AddCommand(
		newServeCmd(a),
		newAddCmd(a),
		newListCmd(a),
		newDayCmd(a),
		newWeekCmd(a),
		newMonthCmd(a),
		newDoneCmd(a),
		newRmCmd(a),
		newLunarCmd(a),
		newYearCmd(a),
		newSolarCmd(a),
		newExportCmd(a),
		newImportCmd(a),
	)
	return root
}

// load reads the config file, applies flag overrides and configures logging.
func (a *app) load() error {
	conf, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		conf.DBPath = a.dbPath
	}
	loc, err := conf.Location()
	if err != nil {
		return err
	}
	appLog.Configure(conf.Log.Level, conf.Log.Encoding)

	a.conf = conf
	a.loc = loc
	if a.now == nil {
		a.now = time.Now
	}
	return nil
}

// openService opens the store and wraps it in an agenda service.
// reminders may be nil for one-shot commands.
func (a *app) openService(reminders agenda.Reminders) (*agenda.Service, *store.Store, error) {
	st, err := store.Open(a.conf.DBPath, a.loc)
	if err != nil {
		return nil, nil, err
	}
	svc := agenda.New(st, reminders, agenda.Options{
		Location:  a.loc,
		WeekStart: a.conf.Weekday(),
		Now:       a.now,
	})
	return svc, st, nil
}

// withService runs fn against a freshly opened service and closes the store
// afterwards.
func (a *app) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *agenda.Service) error) error {
	svc, st, err := a.openService(nil)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cmd.Context(), svc)
}
