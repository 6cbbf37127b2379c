package audit

import "time"

// TimelineFilters narrows the audit timeline. Zero values match everything.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	EntityID string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one audit entry.
type TimelineRow struct {
	At       time.Time      `json:"at"`
	Actor    string         `json:"actor"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entityId"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// PagingInfo describes the current page.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasNext  bool `json:"hasNext"`
	PrevPage int  `json:"prevPage,omitempty"`
	NextPage int  `json:"nextPage,omitempty"`
}
