// Package watch 实现交互模式：stdin 上的按键触发随机打开，数据文件变化时自动重新加载。
package watch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/DBPick/internal/app/pick"
	"github.com/John-Robertt/DBPick/internal/config"
	"github.com/John-Robertt/DBPick/internal/domain"
	"github.com/John-Robertt/DBPick/internal/loader"
	"github.com/John-Robertt/DBPick/internal/status"
)

// DefaultDebounce 合并编辑器/抓取器一次保存产生的多个事件。
const DefaultDebounce = 500 * time.Millisecond

const helpText = `按键：
  回车 / o        随机打开（数量为当前 n）
  n <数量>        随机打开指定数量
  min <评分>      设置最低评分
  max <评分>      设置最高评分
  bucket <档位>   评价人数档位：all/hundreds/thousands/tens_of_thousands/hundreds_of_thousands/millions 或 0-5
  link <类型>     打开页面类型：movie/photos
  r               重新加载数据
  s               显示当前条件
  q               退出`

// Session 是一次交互会话。Mode 为 pick.KindMovies 或 pick.KindURLs。
type Session struct {
	Picker  *pick.Picker
	Mode    string
	Request pick.Request

	In     io.Reader
	Out    io.Writer
	Status *status.Line

	// WatchPaths 是需要监听的本地数据文件；为空时不启动文件监听。
	WatchPaths []string
	Debounce   time.Duration

	// OnReport 在每次打开后回调（例如写出指标）。
	OnReport func(domain.PickReport)
	Log      *zap.Logger

	outMu sync.Mutex
}

// ErrQuit 表示用户主动退出（q 或输入结束）；Run 把它转换为 nil。
var ErrQuit = errors.New("watch: quit")

// Run 阻塞直到用户退出、输入结束或 ctx 取消。
func (s *Session) Run(ctx context.Context) error {
	if s.Status == nil {
		s.Status = &status.Line{}
	}
	if s.Status.OnSet == nil {
		s.Status.OnSet = func(kind status.Kind, msg string) {
			prefix := "✓"
			if kind == status.KindError {
				prefix = "✗"
			}
			s.printf("%s %s\n", prefix, msg)
		}
	}
	defer s.Status.Stop()

	var w *fsnotify.Watcher
	if len(s.WatchPaths) > 0 {
		var err error
		w, err = fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("创建文件监听失败：%w", err)
		}
		defer w.Close()
		if err := s.addWatches(w); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	lines := make(chan string)

	// 读 stdin 不纳入 errgroup：阻塞中的 Read 无法被取消，q 退出时不能等它。
	go func() {
		if err := s.readLines(gctx, lines); err != nil && !errors.Is(err, context.Canceled) {
			s.log().Warn("read input failed", zap.Error(err))
		}
	}()
	g.Go(func() error { return s.commandLoop(gctx, lines) })
	if w != nil {
		g.Go(func() error { return s.watchLoop(gctx, w) })
	}

	s.printf("%s\n", helpText)
	err := g.Wait()
	if errors.Is(err, ErrQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// readLines 把 stdin 按行送入 out，结束时关闭 out。
// 输入结束不取消 ctx：已送出的最后一条命令仍需完整执行。
func (s *Session) readLines(ctx context.Context, out chan<- string) error {
	defer close(out)
	sc := bufio.NewScanner(s.In)
	for sc.Scan() {
		select {
		case out <- sc.Text():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return sc.Err()
}

func (s *Session) commandLoop(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return ErrQuit
			}
			if err := s.handle(ctx, line); err != nil {
				return err
			}
		}
	}
}

// handle 执行一条命令；返回 ErrQuit 表示退出。
func (s *Session) handle(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	cmd := ""
	if len(fields) > 0 {
		cmd = strings.ToLower(fields[0])
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch cmd {
	case "", "o":
		s.open(ctx, s.Request.Count)
	case "n":
		n, err := strconv.Atoi(arg)
		if err != nil {
			s.Status.Error(fmt.Sprintf("数量无效：%q", arg))
			return nil
		}
		s.open(ctx, n)
	case "min":
		s.Request.Filter.MinRating = config.ParseRating(arg, domain.DefaultMinRating)
		s.showFilter()
	case "max":
		s.Request.Filter.MaxRating = config.ParseRating(arg, domain.DefaultMaxRating)
		s.showFilter()
	case "bucket":
		b, err := domain.ParseReviewBucket(arg)
		if err != nil {
			s.Status.Error(err.Error())
			return nil
		}
		s.Request.Filter.Bucket = b
		s.showFilter()
	case "link":
		t, err := domain.ParseLinkType(arg)
		if err != nil {
			s.Status.Error(err.Error())
			return nil
		}
		s.Request.Filter.LinkType = t
		s.showFilter()
	case "r":
		s.reload(ctx, "手动")
	case "s":
		s.showFilter()
	case "h", "?", "help":
		s.printf("%s\n", helpText)
	case "q", "quit", "exit":
		return ErrQuit
	default:
		s.Status.Error(fmt.Sprintf("未知命令：%q（输入 h 查看帮助）", cmd))
	}
	return nil
}

func (s *Session) open(ctx context.Context, count int) {
	var rep domain.PickReport
	if s.Mode == pick.KindURLs {
		rep = s.Picker.OpenURLs(ctx, count, s.Request.Strict)
	} else {
		req := s.Request
		req.Count = count
		rep = s.Picker.OpenMovies(ctx, req)
	}
	if rep.Status == domain.StatusOpened {
		s.Status.Success(rep.Message)
	} else {
		s.Status.Error(rep.Message)
	}
	if s.OnReport != nil {
		s.OnReport(rep)
	}
}

// reload 重新加载当前模式的数据集；已有加载在进行时直接忽略。
func (s *Session) reload(ctx context.Context, reason string) {
	var (
		kept, dropped int
		err           error
	)
	if s.Mode == pick.KindURLs {
		if s.Picker.URLs == nil {
			return
		}
		var snap loader.Snapshot[domain.URLRecord]
		snap, err = s.Picker.URLs.Load(ctx)
		kept, dropped = len(snap.Records), snap.Stats.Dropped
	} else {
		if s.Picker.Movies == nil {
			return
		}
		var snap loader.Snapshot[domain.MovieRecord]
		snap, err = s.Picker.Movies.Load(ctx)
		kept, dropped = len(snap.Records), snap.Stats.Dropped
	}

	switch {
	case errors.Is(err, loader.ErrLoadInFlight):
		s.log().Debug("reload skipped: in flight", zap.String("reason", reason))
	case err != nil:
		s.Status.Error(err.Error())
	default:
		s.Status.Success(LoadSummary(s.Mode, kept, dropped))
	}
}

// LoadSummary 是加载完成后的提示文案。
func LoadSummary(mode string, kept, dropped int) string {
	noun := "部电影数据"
	if mode == pick.KindURLs {
		noun = "个链接"
	}
	msg := fmt.Sprintf("成功加载 %d %s", kept, noun)
	if dropped > 0 {
		msg += fmt.Sprintf("（忽略 %d 行格式错误）", dropped)
	}
	return msg
}

func (s *Session) showFilter() {
	f := s.Request.Filter
	s.Status.Success(fmt.Sprintf("当前条件：%s，评分 %g-%g，评价人数 %s，数量 %d",
		f.LinkType.Label(), f.MinRating, f.MaxRating, f.Bucket, max(s.Request.Count, 1)))
}

// addWatches 监听文件所在目录：抓取器用 rename 原子替换文件，直接监听文件会丢失后续事件。
func (s *Session) addWatches(w *fsnotify.Watcher) error {
	dirs := map[string]bool{}
	for _, p := range s.WatchPaths {
		d := filepath.Dir(filepath.Clean(p))
		if dirs[d] {
			continue
		}
		dirs[d] = true
		if err := w.Add(d); err != nil {
			return fmt.Errorf("监听目录 %q 失败：%w", d, err)
		}
	}
	return nil
}

func (s *Session) watchLoop(ctx context.Context, w *fsnotify.Watcher) error {
	targets := map[string]bool{}
	for _, p := range s.WatchPaths {
		targets[filepath.Clean(p)] = true
	}
	debounce := s.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !targets[filepath.Clean(ev.Name)] {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
				continue
			}
			s.log().Debug("data file changed", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log().Warn("watch error", zap.Error(err))

		case <-fire:
			fire = nil
			s.reload(ctx, "文件变化")
		}
	}
}

func (s *Session) printf(format string, args ...any) {
	if s.Out == nil {
		return
	}
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.Out, format, args...)
}

func (s *Session) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
