// Package loader 负责把数据源加载进内存，并保证同一时刻最多一次加载在途。
package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/John-Robertt/DBPick/internal/dataset"
	"github.com/John-Robertt/DBPick/internal/domain"
)

// State 是 Store 的加载状态。
type State int32

const (
	StateIdle State = iota
	StateLoading
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrLoadInFlight 是 IgnoreConcurrent 策略的体现：加载进行中时的再次调用直接丢弃（不排队）。
var ErrLoadInFlight = errors.New("loader: load already in flight")

// ErrEmptySource 表示数据源可读但内容为空。
var ErrEmptySource = errors.New("数据源为空")

// LoadError 是加载失败（网络/状态码/读取/解析异常）的结构化错误。
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("加载数据失败: %v", e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Code 固定为 load_failed，便于写入 report。
func (e *LoadError) Code() string { return domain.ErrCodeLoadFailed }

// ParseFunc 把原始文本解析为记录；坏行按 dataset.DropMalformed 丢弃。
type ParseFunc[T any] func(text string) ([]T, dataset.Stats)

// Snapshot 是一次成功加载的结果；发布后不再修改。
type Snapshot[T any] struct {
	Records  []T
	Stats    dataset.Stats
	LoadedAt time.Time
}

// Event 在每次加载结束（成功或失败）时回调；被丢弃的并发调用不产生事件。
type Event struct {
	Source   string
	Kept     int
	Dropped  int
	Err      error
	Duration time.Duration
}

// Store 持有最近一次成功加载的快照。
//
// 约束：
// - 加载中再次 Load 返回 ErrLoadInFlight，不影响在途加载的结果
// - 成功后整体替换快照（读者要么看到旧快照，要么看到新快照）
// - 失败保留旧快照，状态置为 failed，之后可重试
type Store[T any] struct {
	fetch Fetcher
	parse ParseFunc[T]
	log   *zap.Logger
	now   func() time.Time
	hook  func(Event)

	mu      sync.Mutex
	state   State
	lastErr error

	snap atomic.Pointer[Snapshot[T]]
}

type Option func(*options)

type options struct {
	log  *zap.Logger
	now  func() time.Time
	hook func(Event)
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithHook 注册加载结束回调（用于 metrics）。
func WithHook(h func(Event)) Option {
	return func(o *options) { o.hook = h }
}

func New[T any](f Fetcher, parse ParseFunc[T], opts ...Option) *Store[T] {
	o := options{log: zap.NewNop(), now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	return &Store[T]{
		fetch: f,
		parse: parse,
		log:   o.log,
		now:   o.now,
		hook:  o.hook,
	}
}

// NewMovies 构造 movie_info.csv 的 Store。
func NewMovies(f Fetcher, opts ...Option) *Store[domain.MovieRecord] {
	return New[domain.MovieRecord](f, dataset.ParseMovies, opts...)
}

// NewURLs 构造 URL 列表的 Store。
func NewURLs(f Fetcher, opts ...Option) *Store[domain.URLRecord] {
	return New[domain.URLRecord](f, dataset.ParseURLs, opts...)
}

func (s *Store[T]) Source() string {
	if s.fetch == nil {
		return ""
	}
	return s.fetch.Source()
}

func (s *Store[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError 返回最近一次失败的错误；成功加载后清空。
func (s *Store[T]) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Snapshot 返回当前快照；从未成功加载时 ok=false。
func (s *Store[T]) Snapshot() (Snapshot[T], bool) {
	p := s.snap.Load()
	if p == nil {
		return Snapshot[T]{}, false
	}
	return *p, true
}

// Records 返回当前记录（只读，不要修改）。
func (s *Store[T]) Records() []T {
	p := s.snap.Load()
	if p == nil {
		return nil
	}
	return p.Records
}

// Load 读取并解析数据源，成功后替换快照。
func (s *Store[T]) Load(ctx context.Context) (Snapshot[T], error) {
	if !s.begin() {
		s.log.Debug("load dropped: already in flight", zap.String("source", s.Source()))
		return Snapshot[T]{}, ErrLoadInFlight
	}

	started := s.now()
	snap, err := s.doLoad(ctx)
	dur := s.now().Sub(started)

	s.mu.Lock()
	if err != nil {
		s.state = StateFailed
		s.lastErr = err
	} else {
		s.snap.Store(&snap)
		s.state = StateLoaded
		s.lastErr = nil
	}
	s.mu.Unlock()

	ev := Event{Source: s.Source(), Err: err, Duration: dur}
	if err != nil {
		s.log.Warn("load failed", zap.String("source", ev.Source), zap.Error(err))
	} else {
		ev.Kept, ev.Dropped = snap.Stats.Kept, snap.Stats.Dropped
		s.log.Info("load done",
			zap.String("source", ev.Source),
			zap.Int("kept", ev.Kept),
			zap.Int("dropped", ev.Dropped),
			zap.Duration("dur", dur),
		)
	}
	if s.hook != nil {
		s.hook(ev)
	}
	if err != nil {
		return Snapshot[T]{}, err
	}
	return snap, nil
}

// EnsureLoaded 在从未成功加载过时触发一次 Load；已有快照时直接返回。
func (s *Store[T]) EnsureLoaded(ctx context.Context) (Snapshot[T], error) {
	if snap, ok := s.Snapshot(); ok {
		return snap, nil
	}
	return s.Load(ctx)
}

func (s *Store[T]) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateLoading {
		return false
	}
	s.state = StateLoading
	return true
}

func (s *Store[T]) doLoad(ctx context.Context) (snap Snapshot[T], err error) {
	src := s.Source()
	if s.fetch == nil {
		return snap, &LoadError{Source: src, Err: errors.New("未配置数据源")}
	}
	b, err := s.fetch.Fetch(ctx)
	if err != nil {
		return snap, &LoadError{Source: src, Err: err}
	}
	if strings.TrimSpace(string(b)) == "" {
		return snap, &LoadError{Source: src, Err: ErrEmptySource}
	}

	defer func() {
		if r := recover(); r != nil {
			snap = Snapshot[T]{}
			err = &LoadError{Source: src, Err: fmt.Errorf("解析异常：%v", r)}
		}
	}()
	recs, st := s.parse(string(b))
	return Snapshot[T]{Records: recs, Stats: st, LoadedAt: s.now()}, nil
}
