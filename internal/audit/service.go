// Package audit reads back the audit trail written by shared.AuditLogger.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Repository is the query surface the service needs.
type Repository interface {
	TimelineWindow(ctx context.Context, arg WindowParams) ([]WindowRow, error)
}

// Result wraps a timeline page.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

// Service serves paged audit timelines.
type Service struct {
	repo Repository
}

// NewService builds the timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of entries. Page size defaults to 20 and is
// capped at 50.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s == nil || s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	rows, err := s.repo.TimelineWindow(ctx, WindowParams{
		FromAt:     toPgTime(filters.From),
		ToAt:       toPgTime(filters.To),
		Actor:      optionalText(filters.Actor),
		Entity:     optionalText(filters.Entity),
		EntityID:   optionalText(filters.EntityID),
		Action:     optionalText(filters.Action),
		OffsetRows: int32(offset),
		LimitRows:  int32(pageSize + 1),
	})
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	out := make([]TimelineRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, mapTimelineRow(row))
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: out, Paging: paging}, nil
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

func mapTimelineRow(row WindowRow) TimelineRow {
	var ts time.Time
	if row.At.Valid {
		ts = row.At.Time
	}
	return TimelineRow{
		At:       ts,
		Actor:    row.Actor,
		Action:   row.Action,
		Entity:   row.Entity,
		EntityID: row.EntityID,
		Meta:     decodeMeta(row.Meta),
	}
}
