package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/DBPick/internal/app/crawl"
	"github.com/John-Robertt/DBPick/internal/provider/douban"
)

func TestCrawlProgress_Lines(t *testing.T) {
	var buf bytes.Buffer
	p := newCrawlProgress(&buf)
	defer p.stop()

	drama := douban.MovieTypes[0]
	p.OnStart(crawl.Plan{Types: []douban.MovieType{drama}, Intervals: []string{"100:90"}, Resumed: 3, Test: true})
	p.OnPage(crawl.PageEvent{Type: drama, Interval: "100:90", Page: 1, Total: 23, Requests: 1, Rate: 12})
	p.OnPage(crawl.PageEvent{Type: drama, Interval: "100:90", Page: 2, Attempt: 1, Err: errors.New("HTTP 403"), Wait: 30 * time.Second})
	p.OnIntervalDone(crawl.IntervalEvent{Type: drama, Interval: "100:90", Added: 20, Total: 23, Dur: 1500 * time.Millisecond})
	p.OnSaved("/tmp/test_movie_info.csv", "/tmp/test_douban_photo_urls.txt", 23)

	out := buf.String()
	for _, want := range []string{
		"DBPick crawl (test)",
		"resumed: 3",
		"[剧情 100:90] 第 1 页 OK total=23 requests=1 rate=12.0/min",
		"[剧情 100:90] 第 2 页 FAIL attempt=1: HTTP 403 (等待 30.0s)",
		"区间 剧情 100:90 OK added=20 total=23 (1.5s)",
		"已保存 23 部",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("进度输出缺少 %q：\n%s", want, out)
		}
	}
}

func TestCrawlProgress_StopTwice(t *testing.T) {
	p := newCrawlProgress(&bytes.Buffer{})
	p.OnStart(crawl.Plan{})
	p.stop()
	p.stop()
}

func TestTruncate_RuneAware(t *testing.T) {
	if got := truncate("剧情,喜剧,动作,爱情", 6); got != "剧情,..." {
		t.Fatalf("截断结果错误：%q", got)
	}
	if got := truncate("  短  ", 10); got != "短" {
		t.Fatalf("未截断时应只去空白：%q", got)
	}
}
