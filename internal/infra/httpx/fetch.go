package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxBody 限制单次响应体读取上限，避免误指向超大文件时把内存吃满。
const maxBody = 64 << 20

// StatusError 表示站点返回了非 2xx 的 HTTP 状态码。
type StatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP错误! 状态码: %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP错误! 状态码: %d location=%s", e.StatusCode, loc)
}

// Get 发起 GET 并返回响应体；非 2xx 返回 *StatusError（同时带回已读取的 body，便于上层识别拦截页）。
func Get(ctx context.Context, c *http.Client, u string) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("http client 不能为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return b, &StatusError{URL: u, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}
