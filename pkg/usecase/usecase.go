package usecase

import (
	"time"

	"github.com/secmon-lab/kottos/pkg/domain/interfaces"
)

type UseCases struct {
	repo   interfaces.Repository
	Ticket *TicketUseCase
}

type Option func(*TicketUseCase)

// WithNotifier sets the chat notification collaborator
func WithNotifier(notifier interfaces.Notifier) Option {
	return func(uc *TicketUseCase) {
		uc.notifier = notifier
	}
}

// WithPublisher sets the domain event publisher
func WithPublisher(publisher interfaces.Publisher) Option {
	return func(uc *TicketUseCase) {
		uc.publisher = publisher
	}
}

// WithClock overrides the time source, for tests
func WithClock(now func() time.Time) Option {
	return func(uc *TicketUseCase) {
		uc.now = now
	}
}

// New wires the use cases. channelID is the tracked support channel and
// triggerReaction the reaction name that creates a ticket.
func New(repo interfaces.Repository, channelID, triggerReaction string, opts ...Option) *UseCases {
	ticket := NewTicketUseCase(repo, channelID, triggerReaction, opts...)
	return &UseCases{
		repo:   repo,
		Ticket: ticket,
	}
}
