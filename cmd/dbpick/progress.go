package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/DBPick/internal/app/crawl"
)

var _ crawl.Observer = (*crawlProgress)(nil)

// crawlProgress 是交互终端下的抓取进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：crawl 层只发事件，CLI 决定如何展示
// - keepalive：反爬等待期间也会定期输出一行，降低等待焦虑
type crawlProgress struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	current  string
	total    int
	requests int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newCrawlProgress(w io.Writer) *crawlProgress {
	return &crawlProgress{
		w:                  w,
		keepaliveThreshold: 15 * time.Second,
		tickerInterval:     5 * time.Second,
	}
}

func (p *crawlProgress) OnStart(plan crawl.Plan) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "full"
	if plan.Test {
		mode = "test"
	}
	names := make([]string, 0, len(plan.Types))
	for _, t := range plan.Types {
		names = append(names, t.Name)
	}

	fmt.Fprintf(p.w, "[%s] DBPick crawl (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintf(p.w, "  types: %d (%s)\n", len(plan.Types), truncate(strings.Join(names, ","), 120))
	fmt.Fprintf(p.w, "  intervals: %d (%s)\n", len(plan.Intervals), truncate(strings.Join(plan.Intervals, ","), 120))
	fmt.Fprintf(p.w, "  resumed: %d\n\n", plan.Resumed)

	p.total = plan.Resumed
	p.lastPrinted = time.Now()
	if !p.tickerStarted {
		p.startTickerLocked()
	}
}

func (p *crawlProgress) OnPage(ev crawl.PageEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = ev.Type.Name + " " + ev.Interval
	p.total = ev.Total
	if ev.Requests > 0 {
		p.requests = ev.Requests
	}

	switch {
	case ev.Err != nil:
		fmt.Fprintf(p.w, "[%s] 第 %d 页 FAIL attempt=%d: %s (等待 %s)\n",
			p.current, ev.Page, ev.Attempt, truncate(ev.Err.Error(), 160), formatShortDuration(ev.Wait),
		)
	case ev.Cached:
		fmt.Fprintf(p.w, "[%s] 第 %d 页 cache total=%d\n", p.current, ev.Page, ev.Total)
	default:
		fmt.Fprintf(p.w, "[%s] 第 %d 页 OK total=%d requests=%d rate=%.1f/min\n",
			p.current, ev.Page, ev.Total, ev.Requests, ev.Rate,
		)
	}
	p.lastPrinted = time.Now()
}

func (p *crawlProgress) OnIntervalDone(ev crawl.IntervalEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = ev.Total
	label := ev.Type.Name + " " + ev.Interval
	if ev.Err != nil {
		fmt.Fprintf(p.w, "区间 %s FAIL added=%d total=%d: %s (%s)\n",
			label, ev.Added, ev.Total, truncate(ev.Err.Error(), 160), formatShortDuration(ev.Dur),
		)
	} else {
		fmt.Fprintf(p.w, "区间 %s OK added=%d total=%d (%s)\n",
			label, ev.Added, ev.Total, formatShortDuration(ev.Dur),
		)
	}
	p.lastPrinted = time.Now()
}

func (p *crawlProgress) OnSaved(moviesPath, urlsPath string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "已保存 %d 部：%s, %s\n", total, moviesPath, urlsPath)
	p.lastPrinted = time.Now()
}

// stop 停止 keepalive；crawl 结束后由 CLI 调用，可重复调用。
func (p *crawlProgress) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *crawlProgress) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 15 * time.Second
	}
	stopCh := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: current=%s total=%d requests=%d elapsed=%s\n",
						p.current, p.total, p.requests, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stopCh:
				return
			}
		}
	}()
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
