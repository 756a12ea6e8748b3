// Package pick 编排一次“随机打开”：确保已加载 → 筛选 → 抽取 → 打开 → 生成报告。
package pick

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/John-Robertt/DBPick/internal/dispatch"
	"github.com/John-Robertt/DBPick/internal/domain"
	"github.com/John-Robertt/DBPick/internal/filter"
	"github.com/John-Robertt/DBPick/internal/loader"
	"github.com/John-Robertt/DBPick/internal/metrics"
	"github.com/John-Robertt/DBPick/internal/sample"
)

const (
	KindMovies = "movies"
	KindURLs   = "urls"
)

// Request 是一次抽取的参数。Count < 1 视为 1。
type Request struct {
	Filter domain.FilterOptions
	Count  int
	Strict bool
}

// Picker 持有两份数据集与打开动作。Movies/URLs 可以只配置其一。
type Picker struct {
	Movies     *loader.Store[domain.MovieRecord]
	URLs       *loader.Store[domain.URLRecord]
	Dispatcher dispatch.Dispatcher
	Rand       sample.Rand
	Metrics    *metrics.Metrics
	Log        *zap.Logger

	Now   func() time.Time
	NewID func() string
}

// OpenMovies 从电影数据集中按条件随机打开 req.Count 部电影。
// 任何失败都体现在报告里（status/error_code/message），不会返回 error。
func (p *Picker) OpenMovies(ctx context.Context, req Request) domain.PickReport {
	opt := filter.Normalize(req.Filter)
	rep := p.newReport(KindMovies, req.Count)
	rep.Options = &opt

	if p.Movies == nil {
		notLoaded(&rep, errors.New("未配置电影数据源"))
		return p.finish(rep)
	}
	rep.Source = p.Movies.Source()

	snap, err := p.Movies.EnsureLoaded(ctx)
	if err != nil {
		loadFailed(&rep, err)
		return p.finish(rep)
	}
	rep.Loaded, rep.Dropped = len(snap.Records), snap.Stats.Dropped
	if len(snap.Records) == 0 {
		notLoaded(&rep, domain.ErrNotLoaded)
		return p.finish(rep)
	}

	cands := filter.Movies(snap.Records, opt)
	rep.Candidate = len(cands)
	picked, ok := draw(p, &rep, cands, req.Count, req.Strict, domain.MsgEmptySelection)
	if !ok {
		return p.finish(rep)
	}

	p.dispatch(ctx, &rep, dispatch.MovieTargets(picked, opt.LinkType), opt.LinkType)
	return p.finish(rep)
}

// OpenURLs 从链接列表中随机打开 count 个链接（不做筛选）。
func (p *Picker) OpenURLs(ctx context.Context, count int, strict bool) domain.PickReport {
	rep := p.newReport(KindURLs, count)

	if p.URLs == nil {
		notLoaded(&rep, errors.New("未配置链接数据源"))
		return p.finish(rep)
	}
	rep.Source = p.URLs.Source()

	snap, err := p.URLs.EnsureLoaded(ctx)
	if err != nil {
		loadFailed(&rep, err)
		return p.finish(rep)
	}
	rep.Loaded, rep.Dropped = len(snap.Records), snap.Stats.Dropped
	rep.Candidate = len(snap.Records)

	picked, ok := draw(p, &rep, snap.Records, count, strict, domain.MsgURLsEmpty)
	if !ok {
		return p.finish(rep)
	}
	p.dispatch(ctx, &rep, dispatch.URLTargets(picked), domain.LinkPhotos)
	return p.finish(rep)
}

func (p *Picker) newReport(kind string, count int) domain.PickReport {
	if count < 1 {
		count = 1
	}
	return domain.PickReport{
		ID:        p.newID(),
		Kind:      kind,
		StartedAt: p.now(),
		Requested: count,
		Items:     make([]domain.PickItem, 0, count),
	}
}

func (p *Picker) finish(rep domain.PickReport) domain.PickReport {
	rep.FinishedAt = p.now()
	rep.Finalize()
	p.log().Info("pick done",
		zap.String("id", rep.ID),
		zap.String("kind", rep.Kind),
		zap.String("status", rep.Status),
		zap.String("error_code", rep.ErrorCode),
		zap.Int("candidates", rep.Candidate),
		zap.Int("opened", rep.Summary.Opened),
		zap.Int("failed", rep.Summary.Failed),
	)
	return rep
}

// draw 抽取；返回 false 表示失败已写入报告，调用方不应再打开任何链接。
func draw[T any](p *Picker, rep *domain.PickReport, items []T, count int, strict bool, emptyMsg string) ([]T, bool) {
	if len(items) == 0 {
		rep.Status = domain.StatusEmpty
		rep.ErrorCode = domain.ErrCodeEmptySelection
		rep.ErrorMsg = domain.ErrEmptySelection.Error()
		rep.Message = emptyMsg
		if p.Metrics != nil {
			p.Metrics.EmptySelections.Inc()
		}
		return nil, false
	}

	r := p.Rand
	if r == nil {
		r = sample.NewRand()
	}
	if count <= 1 {
		one, err := sample.One(r, items)
		if err != nil {
			failed(rep, domain.ErrCodeEmptySelection, err, emptyMsg)
			return nil, false
		}
		return []T{one}, true
	}

	picked, err := sample.N(r, items, count, strict)
	if errors.Is(err, sample.ErrExhausted) {
		failed(rep, domain.ErrCodeExhausted, err, fmt.Sprintf(domain.MsgExhausted, len(items), count))
		return nil, false
	}
	if err != nil {
		failed(rep, domain.ErrCodeEmptySelection, err, emptyMsg)
		return nil, false
	}
	return picked, true
}

func (p *Picker) dispatch(ctx context.Context, rep *domain.PickReport, targets []dispatch.Target, lt domain.LinkType) {
	s := p.Dispatcher.Open(ctx, targets, lt.Label())
	for _, r := range s.Results {
		it := domain.PickItem{ID: r.ID, URL: r.URL, Title: r.Title, Status: domain.ItemStatusOpened}
		if r.Err != nil {
			it.Status = domain.ItemStatusFailed
			it.Error = r.Err.Error()
		}
		rep.Items = append(rep.Items, it)
	}
	rep.Message = s.Message
	if s.Failed > 0 {
		rep.ErrorCode = domain.ErrCodeOpenFailed
		rep.ErrorMsg = firstItemErr(rep.Items)
	}
	if p.Metrics != nil {
		p.Metrics.ObserveOpen(string(lt), s.Opened, s.Failed)
	}
}

// loadFailed 区分“正在加载”（提示稍后重试）与真正的加载失败。
func loadFailed(rep *domain.PickReport, err error) {
	if errors.Is(err, loader.ErrLoadInFlight) {
		notLoaded(rep, err)
		return
	}
	failed(rep, domain.ErrCodeLoadFailed, err, err.Error())
}

func notLoaded(rep *domain.PickReport, err error) {
	failed(rep, domain.ErrCodeNotLoaded, err, domain.MsgNotLoaded)
}

func failed(rep *domain.PickReport, code string, err error, msg string) {
	rep.Status = domain.StatusFailed
	rep.ErrorCode = code
	rep.ErrorMsg = err.Error()
	rep.Message = msg
}

func firstItemErr(items []domain.PickItem) string {
	for _, it := range items {
		if it.Error != "" {
			return it.Error
		}
	}
	return ""
}

func (p *Picker) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Picker) newID() string {
	if p.NewID != nil {
		return p.NewID()
	}
	return uuid.NewString()
}

func (p *Picker) log() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}
