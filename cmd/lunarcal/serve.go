package main

import (
	"github.com/spf13/cobra"

	appLog "lunarcal/internal/log"
	"lunarcal/internal/web"
)

func serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and fire reminders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					appLog.Error("shutdown failed", err)
				}
			}()

			// CLI --listen overrides config file listen if provided.
			if listen != "" {
				a.cfg.Listen = listen
			}

			appLog.Info("lunarcal starting",
				"version", version,
				"listen", a.cfg.Listen,
				"storage", a.cfg.Storage.Driver,
				"webhook", a.cfg.Notify.WebhookURL != "",
				"grace_window", a.sync.GraceWindow().String(),
				"reconcile", a.cfg.Reconcile,
			)

			// Pick up edits made by the CLI or another server on the same store.
			if err := a.sched.AddFunc(a.cfg.Reconcile, func() {
				if _, _, err := a.svc.Reconcile(ctx); err != nil {
					appLog.Error("reconciling alarms failed", err)
				}
			}); err != nil {
				return err
			}

			a.sched.Start()
			n, err := a.svc.Restore(ctx)
			if err != nil {
				// Reminders that could be armed are; keep serving.
				appLog.Error("restoring alarms failed", err, "scheduled", n)
			}

			srv, err := web.NewServer(web.Options{
				Config:  a.cfg,
				Service: a.svc,
				Inbox:   a.inbox,
			})
			if err != nil {
				return err
			}
			if err := srv.ListenAndServe(ctx); err != nil {
				return err
			}
			appLog.Info("lunarcal exiting")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}
