package crawl

import (
	"time"

	"github.com/John-Robertt/DBPick/internal/provider/douban"
)

// Observer 用于把“抓取进度”从核心流程中解耦出来。
//
// 约束：crawl 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// Run 是单 goroutine 执行的，事件按发生顺序串行回调。
type Observer interface {
	// OnStart 在恢复已有数据之后、第一个请求之前调用。
	OnStart(p Plan)
	// OnPage 在每次请求（或缓存命中）后调用；失败时 Err 非空，Wait 是下次重试前的等待。
	OnPage(ev PageEvent)
	// OnIntervalDone 在一个分类的一个区间结束时调用。
	OnIntervalDone(ev IntervalEvent)
	// OnSaved 在输出文件写出后调用。
	OnSaved(moviesPath, urlsPath string, total int)
}

type Plan struct {
	Types     []douban.MovieType
	Intervals []string
	Resumed   int
	Test      bool
}

type PageEvent struct {
	Type     douban.MovieType
	Interval string
	Page     int
	Total    int
	Requests int
	// Rate 是每分钟请求数。
	Rate    float64
	Cached  bool
	Attempt int
	Err     error
	Wait    time.Duration
}

type IntervalEvent struct {
	Type     douban.MovieType
	Interval string
	Added    int
	Total    int
	Err      error
	Dur      time.Duration
}

// NopObserver 忽略所有事件。
type NopObserver struct{}

func (NopObserver) OnStart(Plan)                 {}
func (NopObserver) OnPage(PageEvent)             {}
func (NopObserver) OnIntervalDone(IntervalEvent) {}
func (NopObserver) OnSaved(string, string, int)  {}
