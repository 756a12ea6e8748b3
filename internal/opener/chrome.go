package opener

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Chrome 通过 DevTools 协议在浏览器中新建标签页。
//
// DebugURL 非空时连接到已运行的浏览器（例如 chrome --remote-debugging-port=9222，
// 传 ws://127.0.0.1:9222/ 或 http://127.0.0.1:9222）；为空时启动一个有界面的 Chrome。
// 新标签页由浏览器持有：Close 只断开连接，不关闭已打开的页面（远程模式）。
type Chrome struct {
	DebugURL string
	Log      *zap.Logger

	mu          sync.Mutex
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
}

func (c *Chrome) Open(ctx context.Context, url string) error {
	bctx, err := c.browser()
	if err != nil {
		return err
	}
	cc := chromedp.FromContext(bctx)
	if cc == nil || cc.Browser == nil {
		return errors.New("chrome: browser 未就绪")
	}
	// 在浏览器级别执行 Target.createTarget，避免把新页面绑定到某个 tab 的生命周期上。
	id, err := target.CreateTarget(url).Do(cdp.WithExecutor(ctx, cc.Browser))
	if err != nil {
		return err
	}
	c.log().Debug("chrome target created", zap.String("url", url), zap.String("target", string(id)))
	return nil
}

func (c *Chrome) browser() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browserCtx != nil {
		return c.browserCtx, nil
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if u := strings.TrimSpace(c.DebugURL); u != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), u)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", false),
			chromedp.Flag("disable-gpu", false),
		)
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	bctx, cancel := chromedp.NewContext(allocCtx)
	// 空 Run 用于建立浏览器连接（第一个 tab 随之创建）。
	if err := chromedp.Run(bctx); err != nil {
		cancel()
		allocCancel()
		return nil, err
	}
	c.allocCancel = allocCancel
	c.browserCtx = bctx
	c.cancel = cancel
	return bctx, nil
}

// Close 释放 DevTools 连接。
func (c *Chrome) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browserCtx == nil {
		return nil
	}
	if strings.TrimSpace(c.DebugURL) != "" {
		c.cancel()
		c.allocCancel()
	}
	// 本地启动的浏览器不取消 allocator（取消会结束 Chrome 进程），已打开的窗口留给用户。
	c.browserCtx, c.cancel, c.allocCancel = nil, nil, nil
	return nil
}

func (c *Chrome) log() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}
