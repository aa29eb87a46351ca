package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lunarcal/internal/agenda"
	"lunarcal/internal/ics"
	appLog "lunarcal/internal/log"
)

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Export all events as iCalendar (stdout if no file)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *agenda.Service) error {
				events, err := svc.All(ctx)
				if err != nil {
					return err
				}
				if len(args) == 0 {
					return ics.Export(cmd.OutOrStdout(), events, a.now())
				}

				path := args[0]
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return err
				}
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				if err := ics.Export(f, events, a.now()); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "exported %d events to %s\n", len(events), path)
				return nil
			})
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|url>",
		Short: "Import events from an .ics file or an http(s)/webcal URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := a.readCalendar(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			res, err := ics.ParseICS(body, a.loc)
			if err != nil {
				return err
			}
			return a.withService(cmd, func(ctx context.Context, svc *agenda.Service) error {
				imported, failed := 0, 0
				for _, ev := range res.Events {
					if _, err := svc.Add(ctx, ev); err != nil {
						appLog.Warn("import: event rejected", "title", ev.Title, "err", err)
						failed++
						continue
					}
					imported++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d, skipped %d, failed %d", imported, res.Skipped, failed)
				if res.Recurring > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), " (%d recurring, first occurrence only)", res.Recurring)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
}

func (a *app) readCalendar(ctx context.Context, src string) ([]byte, error) {
	if src == "-" {
		return io.ReadAll(os.Stdin)
	}
	for _, scheme := range []string{"http://", "https://", "webcal://"} {
		if strings.HasPrefix(strings.ToLower(src), scheme) {
			timeout := a.conf.FetchTimeoutDuration()
			ctx, cancel := context.WithTimeout(ctx, timeout+time.Second)
			defer cancel()
			return ics.NewFetcher(timeout).Fetch(ctx, src)
		}
	}
	return os.ReadFile(src)
}
