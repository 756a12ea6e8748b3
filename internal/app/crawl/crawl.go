// Package crawl 按“分类 × 评分区间”遍历豆瓣排行接口，生成 movie_info.csv 与剧照链接列表。
package crawl

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/John-Robertt/DBPick/internal/dataset"
	"github.com/John-Robertt/DBPick/internal/domain"
	"github.com/John-Robertt/DBPick/internal/infra/cache"
	"github.com/John-Robertt/DBPick/internal/infra/fsx"
	"github.com/John-Robertt/DBPick/internal/metrics"
	"github.com/John-Robertt/DBPick/internal/provider/douban"
	"github.com/John-Robertt/DBPick/internal/sample"
)

const (
	MoviesFile = "movie_info.csv"
	URLsFile   = "douban_photo_urls.txt"
	// TestPrefix 加在 --test 模式的输出文件名前，避免覆盖正式数据。
	TestPrefix = "test_"

	// 测试模式只跑前 3 个分类 × 前 3 个区间。
	testTypes     = 3
	testIntervals = 3

	noRating = "暂无评分"
)

var csvHeader = []string{"电影ID", "电影链接", "剧照链接", "评分", "评价人数"}

// photoURLRE 用于从已有的链接文件恢复已抓取的电影 ID。
var photoURLRE = regexp.MustCompile(`^https://movie\.douban\.com/subject/(\d+)/all_photos/?$`)

// PageFetcher 抓取排行接口的一页；douban.Chart 满足该接口。
type PageFetcher interface {
	FetchPage(ctx context.Context, typeID int, interval string, start int) ([]byte, error)
}

// Span 是一个随机等待区间。
type Span struct {
	Min time.Duration
	Max time.Duration
}

func (s Span) pick(r sample.Rand) time.Duration {
	if s.Max <= s.Min {
		return s.Min
	}
	ms := int((s.Max - s.Min) / time.Millisecond)
	return s.Min + time.Duration(r.IntN(ms+1))*time.Millisecond
}

type Options struct {
	OutDir    string
	Types     []douban.MovieType
	Intervals []string

	// Delay 是每次请求前的随机等待。
	Delay         Span
	IntervalPause Span
	TypePause     Span

	MaxRetry    int
	BlockedWait time.Duration
	ErrorWait   time.Duration

	Test      bool
	TestLimit int
}

// DefaultOptions 返回完整抓取的默认节奏（全部分类与区间）。
func DefaultOptions(outDir string) Options {
	return Options{
		OutDir:        outDir,
		Types:         append([]douban.MovieType(nil), douban.MovieTypes...),
		Intervals:     append([]string(nil), douban.Intervals...),
		Delay:         Span{1500 * time.Millisecond, 3500 * time.Millisecond},
		IntervalPause: Span{3 * time.Second, 6 * time.Second},
		TypePause:     Span{5 * time.Second, 10 * time.Second},
		MaxRetry:      5,
		BlockedWait:   30 * time.Second,
		ErrorWait:     5 * time.Second,
		TestLimit:     20,
	}
}

type movieInfo struct {
	Rating  string
	Comment string
}

// Crawler 不是并发安全的：一次 Run 独占使用。
type Crawler struct {
	Chart     PageFetcher
	Cache     *cache.Store
	Publisher *Publisher
	Observer  Observer
	Metrics   *metrics.Metrics
	Log       *zap.Logger
	Rand      sample.Rand
	// Sleep 可在测试中替换；默认按 ctx 可取消地等待。
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time

	Opts Options

	collected map[string]movieInfo
	requests  int
	cacheHits int
	started   time.Time
}

// Run 执行一次完整抓取。中途取消时会先保存已抓到的数据再返回。
func (c *Crawler) Run(ctx context.Context) domain.CrawlReport {
	c.started = c.now()
	c.collected = map[string]movieInfo{}
	c.requests, c.cacheHits = 0, 0

	types, intervals := c.Opts.Types, c.Opts.Intervals
	if c.Opts.Test {
		types = types[:min(testTypes, len(types))]
		intervals = intervals[:min(testIntervals, len(intervals))]
	}

	rep := domain.CrawlReport{
		OutDir:     c.Opts.OutDir,
		Test:       c.Opts.Test,
		StartedAt:  c.started,
		Types:      len(types),
		Intervals:  len(intervals),
		MoviesFile: c.outPath(MoviesFile),
		URLsFile:   c.outPath(URLsFile),
	}

	rep.Resumed = c.resume()
	c.observer().OnStart(Plan{Types: types, Intervals: intervals, Resumed: rep.Resumed, Test: c.Opts.Test})

	limit := 0
	if c.Opts.Test {
		limit = c.Opts.TestLimit
	}

	aborted := c.loop(ctx, &rep, types, intervals, limit)
	if aborted != nil {
		rep.ErrorCode = domain.ErrCodeCrawlAborted
		rep.ErrorMsg = aborted.Error()
	}

	// 最终保存：中断时同样执行，保证已抓到的数据不丢。
	urls, movies, err := c.save()
	if err != nil {
		rep.ErrorCode = domain.ErrCodeIOFailed
		rep.ErrorMsg = err.Error()
		return c.finish(rep)
	}

	if c.Publisher != nil && aborted == nil {
		// 发布失败只记录，本地文件已写出。
		if err := c.Publisher.Publish(ctx, urls, movies); err != nil {
			rep.ErrorCode = domain.ErrCodePublish
			rep.ErrorMsg = err.Error()
		} else {
			rep.Published = true
		}
	}
	return c.finish(rep)
}

// loop 遍历分类 × 区间；返回非 nil 表示被取消或中途保存失败而中止。
func (c *Crawler) loop(ctx context.Context, rep *domain.CrawlReport, types []douban.MovieType, intervals []string, limit int) error {
	for ti, t := range types {
		typeAdded := 0
		for _, iv := range intervals {
			started := c.now()
			added, start, err := c.crawlInterval(ctx, t, iv, limit)
			typeAdded += added

			if err != nil && ctx.Err() == nil {
				rep.Failures = append(rep.Failures, domain.CrawlFailure{
					Type: t.Name, Interval: iv, Start: start, Error: err.Error(),
				})
			}
			c.observer().OnIntervalDone(IntervalEvent{
				Type: t, Interval: iv, Added: added, Total: len(c.collected),
				Err: err, Dur: c.now().Sub(started),
			})
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if c.Opts.Test {
				// 测试模式：某区间新增达到上限即换下一个分类，结束时统一保存。
				if limit > 0 && added >= limit {
					break
				}
				continue
			}

			// 每个区间保存一次，保证长时间抓取中断后数据不丢。
			if _, _, err := c.save(); err != nil {
				return fmt.Errorf("保存结果失败：%w", err)
			}
			if err := c.sleep(ctx, c.Opts.IntervalPause.pick(c.rand())); err != nil {
				return err
			}
		}

		c.log().Info("type done", zap.String("type", t.Name), zap.Int("added", typeAdded), zap.Int("total", len(c.collected)))
		if ti < len(types)-1 {
			if err := c.sleep(ctx, c.Opts.TypePause.pick(c.rand())); err != nil {
				return err
			}
		}
	}
	return nil
}

// crawlInterval 分页抓取一个分类的一个区间。返回新增数量与出错时的 start。
func (c *Crawler) crawlInterval(ctx context.Context, t douban.MovieType, interval string, limit int) (added, start int, err error) {
	for {
		b, cached, err := c.fetch(ctx, t, interval, start)
		if err != nil {
			return added, start, err
		}
		movies, err := douban.ParsePage(b)
		if err != nil {
			return added, start, err
		}
		if !cached && c.Cache != nil {
			if err := c.Cache.WritePage(cache.PageKey{TypeID: t.ID, Interval: interval, Start: start}, b); err != nil && !errors.Is(err, cache.ErrReadOnly) {
				c.log().Warn("cache write failed", zap.Error(err))
			}
		}
		if len(movies) == 0 {
			return added, start, nil
		}

		for _, m := range movies {
			id := strings.TrimSpace(string(m.ID))
			if id == "" {
				continue
			}
			if _, ok := c.collected[id]; ok {
				continue
			}
			rating := strings.TrimSpace(string(m.Score))
			if rating == "" {
				rating = noRating
			}
			c.collected[id] = movieInfo{Rating: rating, Comment: fmt.Sprintf("%d人评价", m.VoteCount)}
			added++
		}

		if len(movies) < douban.PageLimit {
			return added, start, nil
		}
		if limit > 0 && added >= limit {
			return added, start, nil
		}
		start += douban.PageLimit
	}
}

// fetch 先查缓存，未命中时带随机延迟请求；拦截时长等待，其它错误短等待，最多 MaxRetry 次。
func (c *Crawler) fetch(ctx context.Context, t douban.MovieType, interval string, start int) ([]byte, bool, error) {
	page := start/douban.PageLimit + 1
	if c.Cache != nil {
		b, ok, err := c.Cache.ReadPage(cache.PageKey{TypeID: t.ID, Interval: interval, Start: start})
		if err != nil {
			c.log().Warn("cache read failed", zap.Error(err))
		}
		if ok {
			c.cacheHits++
			c.count("cached")
			c.observer().OnPage(PageEvent{Type: t, Interval: interval, Page: page, Total: len(c.collected), Cached: true})
			return b, true, nil
		}
	}

	maxRetry := c.Opts.MaxRetry
	if maxRetry < 1 {
		maxRetry = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxRetry; attempt++ {
		if err := c.sleep(ctx, c.Opts.Delay.pick(c.rand())); err != nil {
			return nil, false, err
		}

		b, err := c.Chart.FetchPage(ctx, t.ID, interval, start)
		c.requests++
		ev := PageEvent{
			Type: t, Interval: interval, Page: page, Total: len(c.collected),
			Requests: c.requests, Rate: c.rate(), Attempt: attempt,
		}
		if err == nil {
			c.count("ok")
			c.observer().OnPage(ev)
			return b, false, nil
		}
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}

		lastErr = err
		wait, status := c.Opts.ErrorWait, "error"
		if douban.IsBlocked(err) {
			wait, status = c.Opts.BlockedWait, "blocked"
		}
		c.count(status)
		ev.Err = err
		if attempt < maxRetry {
			ev.Wait = wait
		}
		c.observer().OnPage(ev)
		c.log().Warn("chart request failed",
			zap.String("type", t.Name),
			zap.String("interval", interval),
			zap.Int("start", start),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < maxRetry {
			if err := c.sleep(ctx, wait); err != nil {
				return nil, false, err
			}
		}
	}
	return nil, false, fmt.Errorf("请求失败超过最大重试次数（%d）：%w", maxRetry, lastErr)
}

// resume 从已有输出恢复已抓取的电影：先读 movie_info.csv（保留评分），再补充链接文件中的 ID。
func (c *Crawler) resume() int {
	if b, err := os.ReadFile(filepath.Join(c.Opts.OutDir, MoviesFile)); err == nil {
		recs, _ := dataset.ParseMovies(string(b))
		for _, m := range recs {
			c.collected[m.ID] = movieInfo{
				Rating:  strconv.FormatFloat(m.Rating, 'f', 1, 64),
				Comment: fmt.Sprintf("%d人评价", m.ReviewCount),
			}
		}
	} else if !os.IsNotExist(err) {
		c.log().Warn("读取已有电影信息失败", zap.Error(err))
	}

	if b, err := os.ReadFile(filepath.Join(c.Opts.OutDir, URLsFile)); err == nil {
		for _, line := range strings.Split(string(b), "\n") {
			m := photoURLRE.FindStringSubmatch(strings.TrimSpace(line))
			if m == nil {
				continue
			}
			if _, ok := c.collected[m[1]]; !ok {
				c.collected[m[1]] = movieInfo{}
			}
		}
	} else if !os.IsNotExist(err) {
		c.log().Warn("读取已有剧照链接失败", zap.Error(err))
	}

	if n := len(c.collected); n > 0 {
		c.log().Info("resumed", zap.Int("movies", n))
	}
	return len(c.collected)
}

// save 按 ID 排序写出两个文件，并返回写出的内容（供发布使用）。
func (c *Crawler) save() (urls, movies []byte, err error) {
	ids := make([]string, 0, len(c.collected))
	for id := range c.collected {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	photo := make([]string, 0, len(ids))
	for _, id := range ids {
		photo = append(photo, douban.PhotosURL(id))
	}
	urls = []byte(strings.Join(photo, "\n"))

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(csvHeader)
	for _, id := range ids {
		info := c.collected[id]
		_ = w.Write([]string{id, douban.SubjectURL(id), douban.PhotosURL(id), info.Rating, info.Comment})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, nil, err
	}
	movies = buf.Bytes()

	if err := fsx.WriteFile(c.outPath(URLsFile), urls); err != nil {
		return nil, nil, err
	}
	if err := fsx.WriteFile(c.outPath(MoviesFile), movies); err != nil {
		return nil, nil, err
	}
	c.observer().OnSaved(c.outPath(MoviesFile), c.outPath(URLsFile), len(ids))
	return urls, movies, nil
}

func (c *Crawler) outPath(name string) string {
	if c.Opts.Test {
		name = TestPrefix + name
	}
	return filepath.Join(c.Opts.OutDir, name)
}

// rate 是每分钟请求数。
func (c *Crawler) rate() float64 {
	elapsed := c.now().Sub(c.started).Minutes()
	if elapsed <= 0 {
		return 0
	}
	return float64(c.requests) / elapsed
}

func (c *Crawler) count(status string) {
	if c.Metrics != nil {
		c.Metrics.CrawlRequests.WithLabelValues(status).Inc()
	}
}

func (c *Crawler) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Crawler) rand() sample.Rand {
	if c.Rand == nil {
		c.Rand = sample.NewRand()
	}
	return c.Rand
}

func (c *Crawler) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Crawler) observer() Observer {
	if c.Observer == nil {
		return NopObserver{}
	}
	return c.Observer
}

func (c *Crawler) log() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}

func (c *Crawler) finish(rep domain.CrawlReport) domain.CrawlReport {
	rep.Total = len(c.collected)
	rep.Added = rep.Total - rep.Resumed
	rep.Requests = c.requests
	rep.CacheHit = c.cacheHits
	rep.FinishedAt = c.now()
	rep.Finalize()
	if c.Metrics != nil {
		c.Metrics.CrawlMovies.Set(float64(rep.Total))
	}
	c.log().Info("crawl done",
		zap.Int("total", rep.Total),
		zap.Int("added", rep.Added),
		zap.Int("requests", rep.Requests),
		zap.Int("failures", len(rep.Failures)),
		zap.String("error_code", rep.ErrorCode),
	)
	return rep
}
