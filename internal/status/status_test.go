package status

import (
	"testing"
	"time"
)

func TestLine_AutoClears(t *testing.T) {
	cleared := make(chan struct{}, 1)
	l := &Line{TTL: 20 * time.Millisecond, OnClear: func() { cleared <- struct{}{} }}

	l.Success("成功加载 3 部电影数据")
	if k, msg := l.Current(); k != KindSuccess || msg != "成功加载 3 部电影数据" {
		t.Fatalf("当前提示不符合预期：%q %q", k, msg)
	}

	select {
	case <-cleared:
	case <-time.After(2 * time.Second):
		t.Fatalf("提示未在 TTL 后清空")
	}
	if k, msg := l.Current(); k != KindNone || msg != "" {
		t.Fatalf("清空后应为空：%q %q", k, msg)
	}
}

func TestLine_NewMessageResetsTimer(t *testing.T) {
	cleared := make(chan struct{}, 4)
	l := &Line{TTL: 200 * time.Millisecond, OnClear: func() { cleared <- struct{}{} }}
	defer l.Stop()

	l.Error("加载数据失败: boom")
	time.Sleep(150 * time.Millisecond)
	l.Success("已成功打开随机剧照页面")

	// 第一条的计时已被取消：此时不应清空第二条。
	time.Sleep(100 * time.Millisecond)
	if k, _ := l.Current(); k != KindSuccess {
		t.Fatalf("新提示不应被旧计时清空：kind=%q", k)
	}

	select {
	case <-cleared:
	case <-time.After(2 * time.Second):
		t.Fatalf("提示未清空")
	}
	if len(cleared) != 0 {
		t.Fatalf("只应清空一次")
	}
}

func TestLine_DefaultTTL(t *testing.T) {
	l := &Line{}
	l.Success("x")
	defer l.Stop()
	if DefaultTTL != 3*time.Second {
		t.Fatalf("默认 TTL 应为 3s")
	}
}
