package opener

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestSystem_UsesPlatformCommand(t *testing.T) {
	cases := []struct {
		goos string
		name string
		args []string
	}{
		{"linux", "xdg-open", []string{"https://a.test/1"}},
		{"darwin", "open", []string{"https://a.test/1"}},
		{"windows", "rundll32", []string{"url.dll,FileProtocolHandler", "https://a.test/1"}},
	}
	for _, tc := range cases {
		var gotName string
		var gotArgs []string
		s := System{GOOS: tc.goos, Run: func(ctx context.Context, name string, args ...string) error {
			gotName, gotArgs = name, args
			return nil
		}}
		if err := s.Open(context.Background(), "https://a.test/1"); err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
		if gotName != tc.name || !reflect.DeepEqual(gotArgs, tc.args) {
			t.Fatalf("goos=%s 命令不符合预期：%s %v", tc.goos, gotName, gotArgs)
		}
	}
}

func TestSystem_PropagatesError(t *testing.T) {
	s := System{GOOS: "linux", Run: func(context.Context, string, ...string) error { return errors.New("no display") }}
	if err := s.Open(context.Background(), "https://a.test/1"); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	p := &Print{W: &buf}
	_ = p.Open(context.Background(), "https://a.test/1")
	_ = p.Open(context.Background(), "https://a.test/2")
	if buf.String() != "https://a.test/1\nhttps://a.test/2\n" {
		t.Fatalf("输出不符合预期：%q", buf.String())
	}
}

func TestNew(t *testing.T) {
	if o, err := New("", "", nil); err != nil || reflect.TypeOf(o) != reflect.TypeOf(System{}) {
		t.Fatalf("默认应为 System：%T %v", o, err)
	}
	if o, err := New("chrome", "ws://127.0.0.1:9222/", nil); err != nil {
		t.Fatalf("不期望错误：%v", err)
	} else if c, ok := o.(*Chrome); !ok || c.DebugURL != "ws://127.0.0.1:9222/" {
		t.Fatalf("chrome opener 构造错误：%#v", o)
	}
	if _, err := New("lynx", "", nil); err == nil {
		t.Fatalf("未知 opener 应报错")
	}
}
