package domain

import (
	"encoding/json"
	"time"
)

// CrawlReport 是 dbpick crawl 的对外稳定输出（stdout JSON）。
type CrawlReport struct {
	OutDir     string    `json:"out_dir"`
	Test       bool      `json:"test"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Types     int `json:"types"`
	Intervals int `json:"intervals"`

	Resumed  int `json:"resumed"`
	Added    int `json:"added"`
	Total    int `json:"total"`
	Requests int `json:"requests"`
	CacheHit int `json:"cache_hits"`

	MoviesFile string `json:"movies_file"`
	URLsFile   string `json:"urls_file"`
	Published  bool   `json:"published"`

	Failures []CrawlFailure `json:"failures"`

	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

// CrawlFailure 记录一个放弃的区间（重试耗尽或响应无法解析）。
type CrawlFailure struct {
	Type     string `json:"type"`
	Interval string `json:"interval"`
	Start    int    `json:"start"`
	Error    string `json:"error"`
}

const (
	ErrCodeCrawlAborted = "crawl_aborted"
	ErrCodeIOFailed     = "io_failed"
	ErrCodePublish      = "publish_failed"
)

func (r *CrawlReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.Failures == nil {
		r.Failures = []CrawlFailure{}
	}
}

func (r CrawlReport) MarshalJSON() ([]byte, error) {
	type Alias CrawlReport
	return json.Marshal(Alias(r))
}
