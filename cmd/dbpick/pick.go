package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/John-Robertt/DBPick/internal/app/pick"
	"github.com/John-Robertt/DBPick/internal/app/watch"
	"github.com/John-Robertt/DBPick/internal/config"
	"github.com/John-Robertt/DBPick/internal/dispatch"
	"github.com/John-Robertt/DBPick/internal/domain"
	"github.com/John-Robertt/DBPick/internal/infra/httpx"
	"github.com/John-Robertt/DBPick/internal/loader"
	"github.com/John-Robertt/DBPick/internal/metrics"
	"github.com/John-Robertt/DBPick/internal/opener"
	"github.com/John-Robertt/DBPick/internal/provider/douban"
	"github.com/John-Robertt/DBPick/internal/status"
)

// pickFlags 是 open/urls/watch 共用的参数；是否显式指定由 cmd.Flags().Changed 判断。
type pickFlags struct {
	movies, urls   string
	link           string
	min, max       string
	bucket         string
	count          int
	strict         bool
	opener         string
	chromeDebugURL string
	describe       bool
	metricsFile    string

	mode    string
	noWatch bool
}

func (f *pickFlags) addOpenFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.IntVarP(&f.count, "count", "n", config.DefaultCount, fmt.Sprintf("随机打开的数量（1-%d）", config.MaxCount))
	fs.BoolVar(&f.strict, "strict", false, "符合条件的记录不足 count 条时不打开任何页面")
	fs.StringVar(&f.opener, "opener", "", "打开方式：system|chrome|print（默认 system）")
	fs.StringVar(&f.chromeDebugURL, "chrome-debug-url", "", "opener=chrome 时连接的 DevTools 地址（例如 http://127.0.0.1:9222）")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "结束时写出 Prometheus textfile 指标")
}

func (f *pickFlags) addMovieFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.movies, "movies", "", "电影数据来源：本地路径、http(s):// 或 redis://host:port/db?key=...")
	fs.StringVar(&f.link, "link", "", "打开的页面：movie|photos")
	fs.StringVar(&f.min, "min", "", "最低评分（无法解析时按 0）")
	fs.StringVar(&f.max, "max", "", "最高评分（无法解析时按 10）")
	fs.StringVar(&f.bucket, "bucket", "", "评价人数档位：all|hundreds|thousands|tens_of_thousands|hundreds_of_thousands|millions 或 0-5")
	fs.BoolVar(&f.describe, "describe", false, "打开后抓取条目页标题用于提示")
}

func (f *pickFlags) addURLFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.urls, "urls", "", "链接列表来源：本地路径、http(s):// 或 redis://host:port/db?key=...")
}

func (f *pickFlags) cliArgs(cmd *cobra.Command, configPath string) config.CLIArgs {
	set := cmd.Flags().Changed
	return config.CLIArgs{
		Config:            configPath,
		MoviesSource:      f.movies,
		MoviesSourceSet:   set("movies"),
		URLsSource:        f.urls,
		URLsSourceSet:     set("urls"),
		LinkType:          f.link,
		LinkTypeSet:       set("link"),
		MinRating:         f.min,
		MinRatingSet:      set("min"),
		MaxRating:         f.max,
		MaxRatingSet:      set("max"),
		Bucket:            f.bucket,
		BucketSet:         set("bucket"),
		Count:             f.count,
		CountSet:          set("count"),
		Strict:            f.strict,
		StrictSet:         set("strict"),
		Opener:            f.opener,
		OpenerSet:         set("opener"),
		ChromeDebugURL:    f.chromeDebugURL,
		ChromeDebugURLSet: set("chrome-debug-url"),
		Describe:          f.describe,
		DescribeSet:       set("describe"),
		MetricsFile:       f.metricsFile,
		MetricsFileSet:    set("metrics-file"),
	}
}

func (a *app) openCmd() *cobra.Command {
	f := &pickFlags{}
	cmd := &cobra.Command{
		Use:   "open",
		Short: "按条件从电影数据中随机打开页面",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eff, err := a.loadConfig(cmd, f)
			if err != nil {
				return a.configFailed(pick.KindMovies, err)
			}
			env, err := a.newPickEnv(eff, true, false)
			if err != nil {
				return a.configFailed(pick.KindMovies, err)
			}
			defer env.close()

			rep := env.picker.OpenMovies(cmd.Context(), pick.Request{Filter: eff.Filter, Count: eff.Count, Strict: eff.Strict})
			return a.finishPick(env, rep)
		},
	}
	f.addMovieFlags(cmd)
	f.addOpenFlags(cmd)
	return cmd
}

func (a *app) urlsCmd() *cobra.Command {
	f := &pickFlags{}
	cmd := &cobra.Command{
		Use:   "urls",
		Short: "从剧照链接列表中随机打开页面（不做筛选）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eff, err := a.loadConfig(cmd, f)
			if err != nil {
				return a.configFailed(pick.KindURLs, err)
			}
			env, err := a.newPickEnv(eff, false, true)
			if err != nil {
				return a.configFailed(pick.KindURLs, err)
			}
			defer env.close()

			rep := env.picker.OpenURLs(cmd.Context(), eff.Count, eff.Strict)
			return a.finishPick(env, rep)
		},
	}
	f.addURLFlags(cmd)
	f.addOpenFlags(cmd)
	return cmd
}

func (a *app) watchCmd() *cobra.Command {
	f := &pickFlags{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "交互模式：按键随机打开，数据文件变化时自动重新加载",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.mode != pick.KindMovies && f.mode != pick.KindURLs {
				return fmt.Errorf("--mode 只能是 movies 或 urls，实际是 %q", f.mode)
			}
			eff, err := a.loadConfig(cmd, f)
			if err != nil {
				fmt.Fprintf(a.stderr, "配置错误（%s）：%v\n", config.Code(err), err)
				return exitCode(1)
			}
			env, err := a.newPickEnv(eff, f.mode == pick.KindMovies, f.mode == pick.KindURLs)
			if err != nil {
				fmt.Fprintf(a.stderr, "初始化失败：%v\n", err)
				return exitCode(1)
			}
			defer env.close()

			s := &watch.Session{
				Picker:  env.picker,
				Mode:    f.mode,
				Request: pick.Request{Filter: eff.Filter, Count: eff.Count, Strict: eff.Strict},
				In:      a.stdin,
				Out:     a.stderr,
				Status:  &status.Line{},
				OnReport: func(domain.PickReport) {
					a.writeMetrics(env)
				},
				Log: a.logger(),
			}
			if !f.noWatch {
				s.WatchPaths = env.localPaths
			}

			a.preload(cmd.Context(), env, f.mode)
			if err := s.Run(cmd.Context()); err != nil {
				fmt.Fprintf(a.stderr, "交互模式异常退出：%v\n", err)
				return exitCode(1)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.mode, "mode", pick.KindMovies, "数据集：movies|urls")
	cmd.Flags().BoolVar(&f.noWatch, "no-watch", false, "不监听本地数据文件变化")
	f.addMovieFlags(cmd)
	f.addURLFlags(cmd)
	f.addOpenFlags(cmd)
	return cmd
}

func (a *app) loadConfig(cmd *cobra.Command, f *pickFlags) (config.EffectiveConfig, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return config.EffectiveConfig{}, &config.Error{Code: config.ErrCodeInvalid, Err: fmt.Errorf("读取当前目录失败：%w", err)}
	}
	return config.LoadEffective(cwd, f.cliArgs(cmd, a.configPath))
}

// pickEnv 是一次 open/urls/watch 调用装配好的依赖。
type pickEnv struct {
	picker      *pick.Picker
	metrics     *metrics.Metrics
	metricsFile string
	// localPaths 是本地文件数据源，watch 模式监听它们。
	localPaths []string
	closers    []func() error
}

func (e *pickEnv) close() {
	for _, c := range e.closers {
		_ = c()
	}
}

func (a *app) newPickEnv(eff config.EffectiveConfig, movies, urls bool) (*pickEnv, error) {
	log := a.logger()
	env := &pickEnv{metrics: metrics.New(), metricsFile: eff.MetricsFile}

	client, err := httpx.NewDataClient(eff.ProxyURL)
	if err != nil {
		return nil, &config.Error{Code: config.ErrCodeInvalid, Err: err}
	}

	p := &pick.Picker{Metrics: env.metrics, Log: log}
	if movies {
		fetcher, err := loader.FetcherFor(eff.MoviesSource, eff.BaseDir, client)
		if err != nil {
			return nil, &config.Error{Code: config.ErrCodeInvalid, Err: fmt.Errorf("movies_source 无效：%w", err)}
		}
		env.track(fetcher)
		p.Movies = loader.NewMovies(fetcher,
			loader.WithLogger(log),
			loader.WithHook(env.metrics.LoadHook(pick.KindMovies)),
		)
	}
	if urls {
		fetcher, err := loader.FetcherFor(eff.URLsSource, eff.BaseDir, client)
		if err != nil {
			return nil, &config.Error{Code: config.ErrCodeInvalid, Err: fmt.Errorf("urls_source 无效：%w", err)}
		}
		env.track(fetcher)
		p.URLs = loader.NewURLs(fetcher,
			loader.WithLogger(log),
			loader.WithHook(env.metrics.LoadHook(pick.KindURLs)),
		)
	}

	// print 模式把链接写到 stderr：stdout 只留给 JSON 报告。
	op, err := opener.New(eff.Opener, eff.ChromeDebugURL, a.stderr)
	if err != nil {
		return nil, &config.Error{Code: config.ErrCodeInvalid, Err: err}
	}
	if c, ok := op.(*opener.Chrome); ok {
		c.Log = log
	}
	if c, ok := op.(opener.Closer); ok {
		env.closers = append(env.closers, c.Close)
	}
	p.Dispatcher = dispatch.Dispatcher{Opener: op, Log: log}
	if eff.Describe {
		dc, err := httpx.NewDoubanClient(eff.ProxyURL)
		if err != nil {
			return nil, &config.Error{Code: config.ErrCodeInvalid, Err: err}
		}
		p.Dispatcher.Describer = douban.Describer{Client: dc}
	}

	env.picker = p
	return env, nil
}

func (e *pickEnv) track(f loader.Fetcher) {
	switch x := f.(type) {
	case loader.FileFetcher:
		e.localPaths = append(e.localPaths, x.Path)
	case loader.RedisFetcher:
		if c, ok := x.Client.(interface{ Close() error }); ok {
			e.closers = append(e.closers, c.Close)
		}
	}
}

// preload 在进入交互前先加载一次数据；失败只提示，之后按键时仍会重试。
func (a *app) preload(ctx context.Context, env *pickEnv, mode string) {
	start := time.Now()
	var (
		kept, dropped int
		err           error
	)
	if mode == pick.KindURLs {
		var snap loader.Snapshot[domain.URLRecord]
		snap, err = env.picker.URLs.Load(ctx)
		kept, dropped = len(snap.Records), snap.Stats.Dropped
	} else {
		var snap loader.Snapshot[domain.MovieRecord]
		snap, err = env.picker.Movies.Load(ctx)
		kept, dropped = len(snap.Records), snap.Stats.Dropped
	}
	if err != nil {
		fmt.Fprintf(a.stderr, "✗ %v\n", err)
		return
	}
	a.logger().Debug("preloaded", zap.String("mode", mode), zap.Duration("took", time.Since(start)))
	fmt.Fprintf(a.stderr, "✓ %s\n", watch.LoadSummary(mode, kept, dropped))
}

// finishPick 输出报告、写出指标，并把报告状态映射为退出码。
func (a *app) finishPick(env *pickEnv, rep domain.PickReport) error {
	a.emitPick(rep)
	a.writeMetrics(env)
	if rep.Status == domain.StatusOpened {
		return nil
	}
	return exitCode(1)
}

func (a *app) emitPick(rep domain.PickReport) {
	if a.emitJSON(rep) {
		fmt.Fprintf(a.stderr, "%s %s\n", pickMark(rep), rep.Message)
		return
	}
	if rep.Status == domain.StatusOpened {
		fmt.Fprintf(a.stdout, "%s %s\n", pickMark(rep), rep.Message)
		return
	}
	fmt.Fprintf(a.stderr, "%s %s\n", pickMark(rep), rep.Message)
	if rep.ErrorCode != "" {
		fmt.Fprintf(a.stderr, "%s: %s\n", rep.ErrorCode, rep.ErrorMsg)
	}
}

func pickMark(rep domain.PickReport) string {
	if rep.Status == domain.StatusOpened {
		return "✓"
	}
	return "✗"
}

func (a *app) writeMetrics(env *pickEnv) {
	if env.metricsFile == "" {
		return
	}
	if err := env.metrics.WriteTextfile(env.metricsFile); err != nil {
		a.logger().Warn("write metrics failed", zap.String("path", env.metricsFile), zap.Error(err))
	}
}

// configFailed 在配置阶段失败时仍输出一个完整的报告，保证 stdout JSON 契约。
func (a *app) configFailed(kind string, err error) error {
	now := time.Now().UTC()
	code := config.Code(err)
	if code == "" {
		code = config.ErrCodeInvalid
	}
	rep := domain.PickReport{
		Kind:       kind,
		StartedAt:  now,
		FinishedAt: now,
		Status:     domain.StatusFailed,
		ErrorCode:  code,
		ErrorMsg:   err.Error(),
		Message:    "配置错误：" + err.Error(),
	}
	rep.Finalize()
	a.emitPick(rep)
	return exitCode(1)
}
