package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if code != 0 {
		os.Exit(code)
	}
}

// exitCode 让子命令在已输出报告后以指定退出码结束，不再打印 cobra 的错误信息。
type exitCode int

func (c exitCode) Error() string { return fmt.Sprintf("exit status %d", int(c)) }

// run 执行一次命令行调用并返回退出码：0 成功，1 执行失败，2 参数错误。
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if a.log != nil {
		_ = a.log.Sync()
	}
	var ec exitCode
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ec):
		return int(ec)
	default:
		fmt.Fprintf(stderr, "参数错误：%v\n\n", err)
		fmt.Fprintf(stderr, "使用 \"dbpick --help\" 查看帮助。\n")
		return 2
	}
}

// app 持有一次调用共享的输出流与全局参数。
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	verbose    bool

	log *zap.Logger
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dbpick",
		Short: "从豆瓣电影数据中随机挑选并打开页面",
		Long: `dbpick 从 movie_info.csv（或剧照链接列表）中按评分与评价人数筛选，随机打开电影页面。

stdout 不是终端时只输出一个 JSON 报告；提示与进度写到 stderr。`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.log = newLogger(a.stderr, a.verbose)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "配置文件路径（默认读取当前目录的 dbpick.json / dbpick.yaml）")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "输出调试日志到 stderr")

	root.AddCommand(a.openCmd(), a.urlsCmd(), a.watchCmd(), a.crawlCmd())
	return root
}

// newLogger 写 stderr：默认只输出告警与错误，--verbose 打开调试日志。
func newLogger(w io.Writer, verbose bool) *zap.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), level)
	return zap.New(core)
}

func (a *app) logger() *zap.Logger {
	if a.log == nil {
		return zap.NewNop()
	}
	return a.log
}

// emitJSON 在 stdout 非 TTY 时输出唯一一个 JSON 报告。
func (a *app) emitJSON(v any) bool {
	if isTTY(a.stdout) {
		return false
	}
	_ = json.NewEncoder(a.stdout).Encode(v)
	return true
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// progressWriter 选择交互进度的输出位置；非交互环境下返回 nil。
func (a *app) progressWriter() (io.Writer, bool) {
	if isTTY(a.stderr) {
		return a.stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(a.stdout) {
		return a.stdout, true
	}
	return nil, false
}
