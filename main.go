// 命令行入口：
// - 捕获 Ctrl+C/SIGTERM，取消正在进行的登录与抓取（浏览器会被关闭）
// - 其余交给 internal/cli（accounts/articles/watch 子命令）
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"tt-creator/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cli.Execute(ctx)
}
