package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/secmon-lab/kottos/pkg/domain/interfaces"
	"github.com/secmon-lab/kottos/pkg/service/scheduler"
)

// Scheduler holds CLI flags for the staleness scheduler
type Scheduler struct {
	enabled          bool
	timeToStale      time.Duration
	reminderInterval time.Duration
	staleCron        string
	remindCron       string
}

func (x *Scheduler) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "scheduler-enabled",
			Usage:       "Enable the staleness scheduler",
			Category:    "Scheduler",
			Value:       true,
			Sources:     cli.EnvVars("KOTTOS_SCHEDULER_ENABLED"),
			Destination: &x.enabled,
		},
		&cli.DurationFlag{
			Name:        "time-to-stale",
			Usage:       "Quiet period after which an opened ticket goes stale",
			Category:    "Scheduler",
			Value:       24 * time.Hour,
			Sources:     cli.EnvVars("KOTTOS_TIME_TO_STALE"),
			Destination: &x.timeToStale,
		},
		&cli.DurationFlag{
			Name:        "reminder-interval",
			Usage:       "Quiet period after which a stale ticket is reminded again",
			Category:    "Scheduler",
			Value:       24 * time.Hour,
			Sources:     cli.EnvVars("KOTTOS_REMINDER_INTERVAL"),
			Destination: &x.reminderInterval,
		},
		&cli.StringFlag{
			Name:        "stale-cron",
			Usage:       "Cron expression for the mark-stale pass",
			Category:    "Scheduler",
			Value:       "*/10 * * * *",
			Sources:     cli.EnvVars("KOTTOS_STALE_CRON"),
			Destination: &x.staleCron,
		},
		&cli.StringFlag{
			Name:        "remind-cron",
			Usage:       "Cron expression for the reminder pass",
			Category:    "Scheduler",
			Value:       "*/10 * * * *",
			Sources:     cli.EnvVars("KOTTOS_REMIND_CRON"),
			Destination: &x.remindCron,
		},
	}
}

func (x Scheduler) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("enabled", x.enabled),
		slog.Duration("time-to-stale", x.timeToStale),
		slog.Duration("reminder-interval", x.reminderInterval),
		slog.String("stale-cron", x.staleCron),
		slog.String("remind-cron", x.remindCron),
	)
}

// Enabled reports whether the scheduler should run
func (x *Scheduler) Enabled() bool {
	return x.enabled
}

// Configure builds the staleness scheduler
func (x *Scheduler) Configure(repo interfaces.Repository, processor scheduler.TicketProcessor) (*scheduler.Scheduler, error) {
	if x.timeToStale <= 0 {
		return nil, goerr.New("time-to-stale must be positive", goerr.V("time_to_stale", x.timeToStale))
	}
	if x.reminderInterval <= 0 {
		return nil, goerr.New("reminder-interval must be positive", goerr.V("reminder_interval", x.reminderInterval))
	}

	return scheduler.New(repo, processor, x.timeToStale, x.reminderInterval, x.staleCron, x.remindCron), nil
}
