// Package dispatch 把抽取结果变成“打开链接”的副作用，并生成面向用户的提示文案。
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/John-Robertt/DBPick/internal/domain"
	"github.com/John-Robertt/DBPick/internal/opener"
)

// Describer 是可选能力：为已打开的链接补充标题（例如豆瓣条目名）。
type Describer interface {
	Describe(ctx context.Context, link string) (string, error)
}

// Target 是一次待打开的链接。
type Target struct {
	ID  string
	URL string
}

// Result 是单个链接的打开结果。
type Result struct {
	Target
	Title string
	Err   error
}

// Summary 总是会生成：Message 是给状态栏的一句话。
type Summary struct {
	Results []Result
	Opened  int
	Failed  int
	Message string
	OK      bool
}

type Dispatcher struct {
	Opener    opener.Opener
	Describer Describer
	Log       *zap.Logger
}

// MovieTargets 按 LinkType 取链接，保持抽取顺序。
func MovieTargets(ms []domain.MovieRecord, t domain.LinkType) []Target {
	out := make([]Target, 0, len(ms))
	for _, m := range ms {
		out = append(out, Target{ID: m.ID, URL: m.Link(t)})
	}
	return out
}

// URLTargets 直接使用 URL 本身。
func URLTargets(us []domain.URLRecord) []Target {
	out := make([]Target, 0, len(us))
	for _, u := range us {
		out = append(out, Target{URL: string(u)})
	}
	return out
}

// Open 按顺序逐个打开；单个失败不影响后续。label 是页面类型名称（例如 "剧照页面"）。
func (d Dispatcher) Open(ctx context.Context, targets []Target, label string) Summary {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	s := Summary{Results: make([]Result, 0, len(targets))}
	if d.Opener == nil {
		for _, t := range targets {
			s.Results = append(s.Results, Result{Target: t, Err: fmt.Errorf("未配置 opener")})
		}
		s.Failed = len(targets)
		s.Message = "打开链接失败: 未配置 opener"
		return s
	}

	for _, t := range targets {
		r := Result{Target: t}
		if strings.TrimSpace(t.URL) == "" {
			r.Err = fmt.Errorf("链接为空（id=%s）", t.ID)
		} else {
			r.Err = d.Opener.Open(ctx, t.URL)
		}
		if r.Err != nil {
			log.Warn("open failed", zap.String("url", t.URL), zap.Error(r.Err))
			s.Failed++
		} else {
			log.Info("opened", zap.String("url", t.URL))
			s.Opened++
			if d.Describer != nil {
				if title, err := d.Describer.Describe(ctx, t.URL); err == nil {
					r.Title = title
				} else {
					log.Debug("describe failed", zap.String("url", t.URL), zap.Error(err))
				}
			}
		}
		s.Results = append(s.Results, r)
	}

	s.OK = s.Failed == 0 && s.Opened > 0
	s.Message = message(s, label)
	return s
}

func message(s Summary, label string) string {
	if s.Opened == 0 {
		if len(s.Results) == 0 {
			return "打开链接失败: 没有可打开的链接"
		}
		return "打开链接失败: " + firstErr(s.Results).Error()
	}

	var b strings.Builder
	if s.Opened == 1 {
		fmt.Fprintf(&b, "已成功打开随机%s", label)
		if title := firstTitle(s.Results); title != "" {
			fmt.Fprintf(&b, "：%s", title)
		}
	} else {
		fmt.Fprintf(&b, "已成功打开 %d 个随机%s", s.Opened, label)
	}
	if s.Failed > 0 {
		fmt.Fprintf(&b, "，%d 个打开失败（%v）", s.Failed, firstErr(s.Results))
	}
	return b.String()
}

func firstErr(rs []Result) error {
	for _, r := range rs {
		if r.Err != nil {
			return r.Err
		}
	}
	return fmt.Errorf("unknown")
}

func firstTitle(rs []Result) string {
	for _, r := range rs {
		if r.Err == nil && r.Title != "" {
			return r.Title
		}
	}
	return ""
}
