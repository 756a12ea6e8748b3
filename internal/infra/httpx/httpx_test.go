package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewDataClient_ProxyDisablesKeepAlive(t *testing.T) {
	c, err := NewDataClient("http://127.0.0.1:8080")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr, ok := c.Transport.(*Transport)
	if !ok {
		t.Fatalf("期望 *Transport，实际 %T", c.Transport)
	}
	if tr.Base.Proxy == nil {
		t.Fatalf("期望启用代理，但 Proxy=nil")
	}
	if !tr.Base.DisableKeepAlives || !tr.DisableKeepAlives {
		t.Fatalf("代理模式应禁用 keep-alive")
	}
}

func TestNewDataClient_NoProxyKeepsDefault(t *testing.T) {
	c, err := NewDataClient("")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr := c.Transport.(*Transport)
	if tr.Base.Proxy != nil {
		t.Fatalf("不期望启用代理，但 Proxy!=nil")
	}
	if tr.Base.DisableKeepAlives {
		t.Fatalf("不期望禁用 keep-alive")
	}
}

func TestNewDataClient_InvalidProxyURL(t *testing.T) {
	if _, err := NewDataClient("http://[::1"); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}

func TestNewDoubanClient_SetsHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewDoubanClient("")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("请求失败：%v", err)
	}
	resp.Body.Close()

	if got.Get("X-Requested-With") != "XMLHttpRequest" {
		t.Fatalf("缺少 X-Requested-With：%v", got)
	}
	if got.Get("Referer") == "" || got.Get("User-Agent") == "" {
		t.Fatalf("缺少 Referer/User-Agent：%v", got)
	}
}
