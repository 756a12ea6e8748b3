// Package status 提供一个会自动清空的单行状态提示。
package status

import (
	"sync"
	"time"
)

// DefaultTTL 与弹窗一致：提示 3 秒后自动隐藏。
const DefaultTTL = 3 * time.Second

type Kind string

const (
	KindNone    Kind = ""
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Line 保存当前提示；Set 后经过 TTL 自动清空并回调 OnClear。
// 新的 Set 会取消上一次的清空计时。
type Line struct {
	TTL     time.Duration
	OnSet   func(kind Kind, msg string)
	OnClear func()

	mu    sync.Mutex
	kind  Kind
	msg   string
	gen   uint64
	timer *time.Timer
}

func (l *Line) Success(msg string) { l.Set(KindSuccess, msg) }

func (l *Line) Error(msg string) { l.Set(KindError, msg) }

func (l *Line) Set(kind Kind, msg string) {
	ttl := l.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	l.mu.Lock()
	l.kind, l.msg = kind, msg
	l.gen++
	gen := l.gen
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(ttl, func() { l.expire(gen) })
	onSet := l.OnSet
	l.mu.Unlock()

	if onSet != nil {
		onSet(kind, msg)
	}
}

// Current 返回当前提示；已清空时 kind=KindNone。
func (l *Line) Current() (Kind, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.kind, l.msg
}

// Stop 取消挂起的清空计时（退出前调用）。
func (l *Line) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (l *Line) expire(gen uint64) {
	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		return
	}
	l.kind, l.msg = KindNone, ""
	l.timer = nil
	onClear := l.OnClear
	l.mu.Unlock()

	if onClear != nil {
		onClear()
	}
}
