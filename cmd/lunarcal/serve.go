package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lunarcal/internal/agenda"
	"lunarcal/internal/config"
	"lunarcal/internal/ics"
	appLog "lunarcal/internal/log"
	"lunarcal/internal/reminder"
	"lunarcal/internal/watch"
	"lunarcal/internal/web"
)

const shutdownGrace = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and deliver reminders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				a.conf.Listen = listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

// serve runs until ctx is canceled.
//
// Behavior:
//   - Pending reminders are loaded from the database at startup.
//   - Changes to the database file made by other processes (the CLI, a
//     second server) drop cached views and resync reminders.
//   - Changes to the config file apply the log level, webhook and basic
//     auth at once; other settings need a restart.
func (a *app) serve(ctx context.Context) error {
	conf := a.conf
	appLog.Info("lunarcal starting",
		"version", version,
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"week_start", conf.WeekStart,
		"db", conf.DBPath,
		"reminders", conf.Reminder.Enabled,
	)

	hook := &reminder.WebhookSlot{}
	hook.Set(conf.Reminder.WebhookURL, conf.ReminderTimeout())

	var (
		reminders agenda.Reminders
		sched     *reminder.Scheduler
	)
	if conf.Reminder.Enabled {
		sched = reminder.NewScheduler(
			reminder.Notifiers{reminder.LogNotifier{}, hook},
			a.loc,
			reminder.WithNotifyTimeout(conf.ReminderTimeout()),
		)
		sched.Start()
		reminders = sched
	}

	svc, st, err := a.openService(reminders)
	if err != nil {
		if sched != nil {
			sched.Stop()
		}
		return err
	}
	defer st.Close()

	if _, err := svc.RestoreReminders(ctx); err != nil {
		appLog.Error("failed to restore reminders", err)
	}

	srv := web.NewServer(svc, web.Options{
		BasicAuth: conf.BasicAuth,
		Fetcher:   ics.NewFetcher(conf.FetchTimeoutDuration()),
	})

	dbWatch, err := watch.New(st.Path(), 0, func() {
		srv.Invalidate()
		if _, err := svc.RestoreReminders(ctx); err != nil {
			appLog.Error("failed to resync reminders", err)
		}
	}, "-wal", "-journal")
	if err != nil {
		appLog.Warn("database watch disabled", "db", st.Path(), "err", err)
	} else {
		go dbWatch.Run(ctx)
	}

	cfgWatch, err := watch.New(a.configPath, 0, func() { a.reload(srv, hook) })
	if err != nil {
		appLog.Warn("config watch disabled", "config_path", a.configPath, "err", err)
	} else {
		go cfgWatch.Run(ctx)
	}

	serveErr := srv.Serve(ctx, conf.Listen)

	if sched != nil {
		done := sched.Stop()
		select {
		case <-done.Done():
		case <-time.After(shutdownGrace):
			appLog.Warn("reminder delivery still running at shutdown")
		}
	}
	appLog.Info("lunarcal exiting")
	return serveErr
}

// reload re-reads the config file and applies the settings that can change
// while serving.
func (a *app) reload(srv *web.Server, hook *reminder.WebhookSlot) {
	next, err := config.Load(a.configPath)
	if err != nil {
		appLog.Error("config reload failed", err, "config_path", a.configPath)
		return
	}
	if a.dbPath != "" {
		next.DBPath = a.dbPath
	}

	appLog.SetLevel(appLog.Level(strings.ToUpper(next.Log.Level)))
	hook.Set(next.Reminder.WebhookURL, next.ReminderTimeout())
	srv.SetBasicAuth(next.BasicAuth)

	prev := a.conf
	if next.Timezone != prev.Timezone || next.DBPath != prev.DBPath ||
		next.WeekStart != prev.WeekStart || next.Reminder.Enabled != prev.Reminder.Enabled {
		appLog.Warn("config changed; timezone, week_start, db_path and reminder.enabled apply after restart")
	}
	appLog.Info("config reloaded",
		"log_level", next.Log.Level,
		"webhook", hook.URL() != "",
		"basic_auth", next.BasicAuth != nil,
	)
}
