// Package opener 提供“在新标签页打开链接”的宿主能力。
package opener

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"sync"
)

const (
	KindSystem = "system"
	KindChrome = "chrome"
	KindPrint  = "print"
)

// Opener 打开一个 URL。实现必须在返回前完成“发起打开”这一动作（不等待页面加载）。
type Opener interface {
	Open(ctx context.Context, url string) error
}

// Closer 是可选能力：持有浏览器连接等资源的 Opener 实现它。
type Closer interface {
	Close() error
}

// Runner 执行外部命令；测试可替换。
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// System 通过操作系统默认浏览器打开（xdg-open / open / rundll32）。
type System struct {
	GOOS string
	Run  Runner
}

func (s System) Open(ctx context.Context, url string) error {
	goos := s.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	run := s.Run
	if run == nil {
		run = execRunner
	}
	name, args := SystemCommand(goos, url)
	return run(ctx, name, args...)
}

// SystemCommand 返回对应平台打开 URL 的命令。
func SystemCommand(goos, url string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		return "xdg-open", []string{url}
	}
}

// Print 只把 URL 写到 W（dry-run 或无图形环境时使用）。
type Print struct {
	mu sync.Mutex
	W  io.Writer
}

func (p *Print) Open(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.W, url)
	return err
}

// New 按 kind 构造 Opener；print 模式写到 w。
func New(kind, chromeDebugURL string, w io.Writer) (Opener, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindSystem:
		return System{}, nil
	case KindChrome:
		return &Chrome{DebugURL: chromeDebugURL}, nil
	case KindPrint:
		return &Print{W: w}, nil
	default:
		return nil, fmt.Errorf("opener 只能是 system、chrome 或 print，实际是 %q", kind)
	}
}
