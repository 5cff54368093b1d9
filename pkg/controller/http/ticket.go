package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/secmon-lab/kottos/pkg/domain/model"
	"github.com/secmon-lab/kottos/pkg/domain/types"
	"github.com/secmon-lab/kottos/pkg/utils/errutil"
)

type ticketResponse struct {
	ID               types.TicketID         `json:"id"`
	ChannelID        types.ChannelID        `json:"channel_id"`
	QueryTS          types.MessageTS        `json:"query_ts"`
	Status           types.TicketStatus     `json:"status"`
	Team             *string                `json:"team,omitempty"`
	Tags             []types.TagCode        `json:"tags,omitempty"`
	Impact           *types.ImpactID        `json:"impact,omitempty"`
	AssignedTo       *types.UserID          `json:"assigned_to,omitempty"`
	StatusLog        []statusLogResponse    `json:"status_log"`
	LastInteractedAt time.Time              `json:"last_interacted_at"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

type statusLogResponse struct {
	Status    types.TicketStatus `json:"status"`
	Timestamp time.Time          `json:"timestamp"`
}

type listTicketsResponse struct {
	Tickets  []ticketResponse `json:"tickets"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

func toTicketResponse(t *model.Ticket) ticketResponse {
	resp := ticketResponse{
		ID:               t.ID,
		ChannelID:        t.ChannelID,
		QueryTS:          t.QueryTS,
		Status:           t.Status,
		Tags:             t.Tags,
		Impact:           t.Impact,
		AssignedTo:       t.AssignedTo,
		LastInteractedAt: t.LastInteractedAt,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
	if t.Team != nil {
		label := t.Team.Label()
		resp.Team = &label
	}
	for _, entry := range t.StatusLog {
		resp.StatusLog = append(resp.StatusLog, statusLogResponse{
			Status:    entry.Status,
			Timestamp: entry.Timestamp,
		})
	}
	return resp
}

func (s *Server) listTicketsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, err := s.parseTicketsQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		tickets, err := s.repo.Ticket().ListTickets(r.Context(), query)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to list tickets"), http.StatusInternalServerError)
			return
		}

		resp := listTicketsResponse{
			Tickets:  make([]ticketResponse, 0, len(tickets)),
			Page:     query.Page,
			PageSize: query.Limit(),
		}
		for _, t := range tickets {
			resp.Tickets = append(resp.Tickets, toTicketResponse(t))
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			errutil.Handle(r.Context(), err, "failed to encode ticket listing")
		}
	}
}

func (s *Server) parseTicketsQuery(r *http.Request) (model.TicketsQuery, error) {
	var query model.TicketsQuery
	params := r.URL.Query()

	if v := params.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 0 {
			return query, goerr.New("invalid page", goerr.V("page", v))
		}
		query.Page = page
	}
	if v := params.Get("page_size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 {
			return query, goerr.New("invalid page_size", goerr.V("page_size", v))
		}
		query.PageSize = size
	}

	if v := params.Get("status"); v != "" {
		status, err := types.ParseTicketStatus(v)
		if err != nil {
			return query, err
		}
		query.Status = &status
	}

	for _, raw := range splitCSV(params.Get("ids")) {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return query, goerr.New("invalid ticket ID", goerr.V("id", raw))
		}
		query.IDs = append(query.IDs, types.TicketID(id))
	}

	for _, tag := range splitCSV(params.Get("tags")) {
		query.Tags = append(query.Tags, types.TagCode(tag))
	}
	query.IncludeNoTags = params.Get("include_no_tags") == "true"

	for _, impact := range splitCSV(params.Get("impacts")) {
		id := types.ImpactID(impact)
		if err := id.Validate(); err != nil {
			return query, err
		}
		query.Impacts = append(query.Impacts, id)
	}

	for _, code := range splitCSV(params.Get("teams")) {
		query.Teams = append(query.Teams, types.NewTeam(code))
	}

	if v := params.Get("escalated"); v != "" {
		escalated, err := strconv.ParseBool(v)
		if err != nil {
			return query, goerr.New("invalid escalated flag", goerr.V("escalated", v))
		}
		query.Escalated = &escalated
	}
	if v := params.Get("escalation_team"); v != "" {
		team := types.NewTeam(v)
		query.EscalationTeam = &team
	}

	if v := params.Get("created_after"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return query, goerr.New("invalid created_after", goerr.V("created_after", v))
		}
		query.CreatedAfter = &ts
	}
	if v := params.Get("created_before"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return query, goerr.New("invalid created_before", goerr.V("created_before", v))
		}
		query.CreatedBefore = &ts
	}

	// Assignee lookups go through the hash so listings work the same
	// whether assignees are stored in plain or encrypted form.
	if v := params.Get("assignee"); v != "" {
		if s.cipher == nil {
			return query, goerr.New("assignee filter is not available")
		}
		query.AssignedToHash = s.cipher.Hash(types.UserID(v))
	}

	return query, nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
