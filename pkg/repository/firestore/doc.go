package firestore

import (
	"time"

	"github.com/secmon-lab/kottos/pkg/domain/model"
	"github.com/secmon-lab/kottos/pkg/domain/types"
)

// ticketDoc is the Firestore document form of a ticket. The assignee is
// stored only in its ciphered form plus a deterministic hash for search.
type ticketDoc struct {
	ID               int64          `firestore:"id"`
	ChannelID        string         `firestore:"channel_id"`
	QueryTS          string         `firestore:"query_ts"`
	CreatedMessageTS string         `firestore:"created_message_ts"`
	Status           string         `firestore:"status"`
	Team             *teamDoc       `firestore:"team"`
	Tags             []string       `firestore:"tags"`
	Impact           *string        `firestore:"impact"`
	AssignedValue    string         `firestore:"assigned_value"`
	AssignedFormat   string         `firestore:"assigned_format"`
	AssignedHash     string         `firestore:"assigned_hash"`
	StatusLog        []statusLogDoc `firestore:"status_log"`
	LastInteractedAt time.Time      `firestore:"last_interacted_at"`
	RatingSubmitted  bool           `firestore:"rating_submitted"`
	CreatedAt        time.Time      `firestore:"created_at"`
	UpdatedAt        time.Time      `firestore:"updated_at"`
}

type teamDoc struct {
	Known bool   `firestore:"known"`
	Code  string `firestore:"code"`
}

type statusLogDoc struct {
	Status    string    `firestore:"status"`
	Timestamp time.Time `firestore:"timestamp"`
}

type queryDoc struct {
	ChannelID string    `firestore:"channel_id"`
	MessageTS string    `firestore:"message_ts"`
	TicketID  int64     `firestore:"ticket_id"`
	CreatedAt time.Time `firestore:"created_at"`
}

type escalationDoc struct {
	TicketID   int64      `firestore:"ticket_id"`
	Team       teamDoc    `firestore:"team"`
	Tags       []string   `firestore:"tags"`
	OpenedAt   time.Time  `firestore:"opened_at"`
	Resolved   bool       `firestore:"resolved"`
	ResolvedAt *time.Time `firestore:"resolved_at"`
}

func toTicketDoc(t *model.Ticket) *ticketDoc {
	doc := &ticketDoc{
		ID:               int64(t.ID),
		ChannelID:        t.ChannelID.String(),
		QueryTS:          t.QueryTS.String(),
		CreatedMessageTS: t.CreatedMessageTS.String(),
		Status:           t.Status.String(),
		LastInteractedAt: t.LastInteractedAt,
		RatingSubmitted:  t.RatingSubmitted,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
	if t.Team != nil {
		doc.Team = &teamDoc{Known: t.Team.IsKnown(), Code: t.Team.Code()}
	}
	for _, tag := range t.Tags {
		doc.Tags = append(doc.Tags, tag.String())
	}
	if t.Impact != nil {
		impact := t.Impact.String()
		doc.Impact = &impact
	}
	for _, entry := range t.StatusLog {
		doc.StatusLog = append(doc.StatusLog, statusLogDoc{
			Status:    entry.Status.String(),
			Timestamp: entry.Timestamp,
		})
	}
	return doc
}

func (d *ticketDoc) toModel() *model.Ticket {
	t := &model.Ticket{
		ID:               types.TicketID(d.ID),
		ChannelID:        types.ChannelID(d.ChannelID),
		QueryTS:          types.MessageTS(d.QueryTS),
		CreatedMessageTS: types.MessageTS(d.CreatedMessageTS),
		Status:           types.TicketStatus(d.Status),
		LastInteractedAt: d.LastInteractedAt,
		RatingSubmitted:  d.RatingSubmitted,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
	if d.Team != nil {
		team := d.Team.toModel()
		t.Team = &team
	}
	for _, tag := range d.Tags {
		t.Tags = append(t.Tags, types.TagCode(tag))
	}
	if d.Impact != nil {
		impact := types.ImpactID(*d.Impact)
		t.Impact = &impact
	}
	for _, entry := range d.StatusLog {
		t.StatusLog = append(t.StatusLog, model.StatusLogEntry{
			Status:    types.TicketStatus(entry.Status),
			Timestamp: entry.Timestamp,
		})
	}
	return t
}

func (d teamDoc) toModel() types.Team {
	if !d.Known {
		return types.UnknownTeam()
	}
	return types.NewTeam(d.Code)
}

func (d *escalationDoc) toModel() *model.Escalation {
	e := &model.Escalation{
		TicketID:   types.TicketID(d.TicketID),
		Team:       d.Team.toModel(),
		OpenedAt:   d.OpenedAt,
		ResolvedAt: d.ResolvedAt,
	}
	for _, tag := range d.Tags {
		e.Tags = append(e.Tags, types.TagCode(tag))
	}
	return e
}
