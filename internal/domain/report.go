package domain

import (
	"encoding/json"
	"time"
)

const (
	StatusOpened  = "opened"
	StatusPartial = "partial"
	StatusFailed  = "failed"
	StatusEmpty   = "empty"
)

const (
	ItemStatusOpened = "opened"
	ItemStatusFailed = "failed"
)

// PickReport 是对外稳定输出（stdout JSON）的结构：一次“随机打开”的完整记录。
type PickReport struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Kind   string `json:"kind"` // "movies" 或 "urls"

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Options   *FilterOptions `json:"options,omitempty"`
	Loaded    int            `json:"loaded"`
	Dropped   int            `json:"dropped"`
	Candidate int            `json:"candidates"`
	Requested int            `json:"requested"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
	Message   string `json:"message"`

	Summary PickSummary `json:"summary"`
	Items   []PickItem  `json:"items"`
}

type PickSummary struct {
	Opened int `json:"opened"`
	Failed int `json:"failed"`
}

type PickItem struct {
	ID     string `json:"id,omitempty"`
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) summary 由 items 计算得出
// 3) 若尚未设置 status（例如错误路径已设置为 empty/failed），按 summary 推导
func (r *PickReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.Items == nil {
		r.Items = []PickItem{}
	}

	var s PickSummary
	for _, it := range r.Items {
		switch it.Status {
		case ItemStatusOpened:
			s.Opened++
		case ItemStatusFailed:
			s.Failed++
		}
	}
	r.Summary = s

	if r.Status != "" {
		return
	}
	switch {
	case s.Opened > 0 && s.Failed == 0:
		r.Status = StatusOpened
	case s.Opened > 0:
		r.Status = StatusPartial
	default:
		r.Status = StatusFailed
	}
}

// MarshalJSON 集中约束输出稳定性；当前透传 encoding/json 的默认行为。
func (r PickReport) MarshalJSON() ([]byte, error) {
	type Alias PickReport
	return json.Marshal(Alias(r))
}
