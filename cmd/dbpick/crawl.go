package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/DBPick/internal/app/crawl"
	"github.com/John-Robertt/DBPick/internal/config"
	"github.com/John-Robertt/DBPick/internal/domain"
	"github.com/John-Robertt/DBPick/internal/infra/cache"
	"github.com/John-Robertt/DBPick/internal/infra/httpx"
	"github.com/John-Robertt/DBPick/internal/metrics"
	"github.com/John-Robertt/DBPick/internal/provider/douban"
)

type crawlFlags struct {
	out         string
	test        bool
	types       []string
	publish     string
	metricsFile string
}

func (a *app) crawlCmd() *cobra.Command {
	f := &crawlFlags{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "按“分类 × 评分区间”抓取豆瓣排行，生成 movie_info.csv 与剧照链接列表",
		Long: `crawl 遍历 https://movie.douban.com/j/chart/top_list 的全部分类与评分区间。

已有的输出文件会被读取用于断点续抓；每完成一个区间保存一次，Ctrl+C 中断时也会先保存。
--test 只抓前 3 个分类 × 前 3 个区间，每个分类最多 test_limit 部，输出文件带 test_ 前缀。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				fmt.Fprintf(a.stderr, "读取当前目录失败：%v\n", err)
				return exitCode(1)
			}
			set := cmd.Flags().Changed
			eff, err := config.LoadEffective(cwd, config.CLIArgs{
				Config:         a.configPath,
				CrawlOutDir:    f.out,
				CrawlOutDirSet: set("out"),
				CrawlTest:      f.test,
				CrawlTestSet:   set("test"),
				CrawlTypes:     f.types,
				CrawlTypesSet:  set("types"),
				Publish:        f.publish,
				PublishSet:     set("publish"),
				MetricsFile:    f.metricsFile,
				MetricsFileSet: set("metrics-file"),
			})
			if err != nil {
				return a.crawlConfigFailed(cwd, f, err)
			}

			c, closeFn, err := a.newCrawler(eff)
			if err != nil {
				return a.crawlConfigFailed(eff.Crawl.OutDir, f, err)
			}
			defer closeFn()

			if w, ok := a.progressWriter(); ok {
				prog := newCrawlProgress(w)
				defer prog.stop()
				c.Observer = prog
			}

			rep := c.Run(cmd.Context())
			a.emitCrawl(rep)
			if eff.MetricsFile != "" {
				if err := c.Metrics.WriteTextfile(eff.MetricsFile); err != nil {
					fmt.Fprintf(a.stderr, "写出指标失败：%v\n", err)
				}
			}
			if rep.ErrorCode == "" && len(rep.Failures) == 0 {
				return nil
			}
			return exitCode(1)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.out, "out", "", "输出目录（默认当前目录）")
	fs.BoolVar(&f.test, "test", false, "测试模式：少量分类与区间，输出 test_ 前缀文件，不写页面缓存")
	fs.StringSliceVar(&f.types, "types", nil, "只抓指定分类（中文名或 type id，逗号分隔）")
	fs.StringVar(&f.publish, "publish", "", "抓取完成后发布到 Redis：redis://host:port/db?key=前缀")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "结束时写出 Prometheus textfile 指标")
	return cmd
}

func (a *app) newCrawler(eff config.EffectiveConfig) (*crawl.Crawler, func(), error) {
	client, err := httpx.NewDoubanClient(eff.ProxyURL)
	if err != nil {
		return nil, nil, &config.Error{Code: config.ErrCodeInvalid, Err: err}
	}

	opts := crawl.DefaultOptions(eff.Crawl.OutDir)
	opts.Types = eff.Crawl.Types
	opts.Intervals = eff.Crawl.Intervals
	opts.Delay = crawl.Span{Min: eff.Crawl.MinDelay, Max: eff.Crawl.MaxDelay}
	opts.Test = eff.Crawl.Test
	opts.TestLimit = eff.Crawl.TestLimit

	c := &crawl.Crawler{
		Chart:   douban.Chart{BaseURL: eff.Crawl.BaseURL, Client: client},
		Metrics: metrics.New(),
		Log:     a.logger(),
		Opts:    opts,
	}
	if eff.Crawl.CacheDir != "" {
		s := cache.New(eff.Crawl.CacheDir, eff.Crawl.Test)
		c.Cache = &s
	}

	closeFn := func() {}
	if eff.Crawl.Publish != "" {
		p, err := crawl.NewRedisPublisher(eff.Crawl.Publish)
		if err != nil {
			return nil, nil, &config.Error{Code: config.ErrCodeInvalid, Err: err}
		}
		c.Publisher = p
		closeFn = func() { _ = p.Close() }
	}
	return c, closeFn, nil
}

func (a *app) emitCrawl(rep domain.CrawlReport) {
	summary := fmt.Sprintf("完成：total=%d added=%d resumed=%d requests=%d cache_hits=%d failures=%d",
		rep.Total, rep.Added, rep.Resumed, rep.Requests, rep.CacheHit, len(rep.Failures))

	if a.emitJSON(rep) {
		fmt.Fprintln(a.stderr, summary)
	} else {
		fmt.Fprintln(a.stdout, summary)
	}
	for _, f := range rep.Failures {
		fmt.Fprintf(a.stderr, "%s %s start=%d: %s\n", f.Type, f.Interval, f.Start, f.Error)
	}
	if rep.ErrorCode != "" {
		fmt.Fprintf(a.stderr, "%s: %s\n", rep.ErrorCode, rep.ErrorMsg)
	}
}

func (a *app) crawlConfigFailed(outDir string, f *crawlFlags, err error) error {
	now := time.Now().UTC()
	rep := domain.CrawlReport{
		OutDir:     outDir,
		Test:       f.test,
		StartedAt:  now,
		FinishedAt: now,
		ErrorCode:  config.Code(err),
		ErrorMsg:   err.Error(),
	}
	if rep.ErrorCode == "" {
		rep.ErrorCode = config.ErrCodeInvalid
	}
	rep.Finalize()
	a.emitCrawl(rep)
	return exitCode(1)
}
