package cli

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/secmon-lab/kottos/pkg/cli/config"
	httpctrl "github.com/secmon-lab/kottos/pkg/controller/http"
	"github.com/secmon-lab/kottos/pkg/domain/model"
	"github.com/secmon-lab/kottos/pkg/usecase"
	"github.com/secmon-lab/kottos/pkg/utils/logging"
)

func cmdServe() *cli.Command {
	var addr string
	var repoCfg config.Repository
	var slackCfg config.Slack
	var cryptoCfg config.Crypto
	var schedulerCfg config.Scheduler

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("KOTTOS_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)
	flags = append(flags, cryptoCfg.Flags()...)
	flags = append(flags, schedulerCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the webhook server and staleness scheduler",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logging.Default().Info("serve configuration",
				"repository", repoCfg.Backend(),
				"slack", slackCfg,
				"crypto", cryptoCfg,
				"scheduler", schedulerCfg,
			)

			cipher, err := cryptoCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to configure assignee cipher")
			}

			repo, err := repoCfg.Configure(ctx, cipher)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			notifier, err := slackCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to configure Slack notifier")
			}

			registry := usecase.NewEventRegistry()
			registry.Subscribe(model.EventTicketStatusChanged, func(ctx context.Context, ev model.Event) error {
				logging.From(ctx).Info("ticket status changed", "event", ev)
				return nil
			})
			registry.Subscribe(model.EventTicketEscalated, func(ctx context.Context, ev model.Event) error {
				logging.From(ctx).Info("ticket escalated", "event", ev)
				return nil
			})

			uc := usecase.New(repo, slackCfg.ChannelID(), slackCfg.TriggerReaction(),
				usecase.WithNotifier(notifier),
				usecase.WithPublisher(registry),
			)

			httpOpts := []httpctrl.Options{
				httpctrl.WithAssigneeCipher(cipher),
			}
			if slackCfg.IsWebhookConfigured() {
				webhookHandler := httpctrl.NewSlackWebhookHandler(uc.Ticket)
				httpOpts = append(httpOpts, httpctrl.WithSlackWebhook(webhookHandler, slackCfg.SigningSecret()))
				logging.Default().Info("Slack webhook handler enabled")
			} else {
				logging.Default().Warn("Slack signing secret not configured, webhook disabled")
			}

			httpHandler, err := httpctrl.New(repo, httpOpts...)
			if err != nil {
				return goerr.Wrap(err, "failed to create http server")
			}
			server := &http.Server{
				Addr:              addr,
				Handler:           httpHandler,
				ReadHeaderTimeout: 30 * time.Second,
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if schedulerCfg.Enabled() {
				sched, err := schedulerCfg.Configure(repo, uc.Ticket)
				if err != nil {
					return goerr.Wrap(err, "failed to configure scheduler")
				}
				if err := sched.Start(ctx); err != nil {
					return goerr.Wrap(err, "failed to start scheduler")
				}
				defer sched.Stop()
			}

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return goerr.Wrap(err, "failed to start server")
				}
				return nil
			})
			eg.Go(func() error {
				<-ctx.Done()
				logging.Default().Info("Shutting down HTTP server")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}
				return nil
			})

			if err := eg.Wait(); err != nil {
				return err
			}

			logging.Default().Info("Server shutdown completed")
			return nil
		},
	}
}
