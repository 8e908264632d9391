// 包 cli 为命令行展示层：解析参数、调用 app 并以表格输出结果，不包含业务逻辑。
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"tt-creator/internal/app"
	"tt-creator/internal/config"
	"tt-creator/internal/logx"
)

// Opener 按配置创建 App；默认为 app.Open，测试可替换。
type Opener func(cfg *config.Config, log *logx.Logger) (*app.App, error)

// env 为一次命令执行期间共享的对象，由 PersistentPreRunE 填充。
type env struct {
	open       Opener
	configPath string
	dbPath     string
	rulesPath  string
	logLevel   string

	cfg *config.Config
	log *logx.Logger
	app *app.App
}

// newRootCmd 构造完整的命令树。
func newRootCmd(open Opener) (*cobra.Command, *env) {
	if open == nil {
		open = app.Open
	}
	e := &env{open: open}
	root := &cobra.Command{
		Use:           "tt-creator",
		Short:         "tt-creator manages creator accounts and scrapes their article statistics.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.setup(cmd.ErrOrStderr())
		},
	}
	f := root.PersistentFlags()
	f.StringVarP(&e.configPath, "config", "c", "settings.yaml", "path to settings.yaml")
	f.StringVar(&e.dbPath, "db", "", "override DATABASE.dsn")
	f.StringVar(&e.rulesPath, "rules", "", "override RULES (selector rules yaml)")
	f.StringVar(&e.logLevel, "log-level", "", "override LOG_LEVEL (debug|info|warn|error|none)")

	root.AddCommand(newAccountsCmd(e), newArticlesCmd(e), newWatchCmd(e))
	return root, e
}

func (e *env) setup(logOut io.Writer) error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	if e.dbPath != "" {
		cfg.Database.DSN = e.dbPath
	}
	if e.rulesPath != "" {
		cfg.RulesPath = e.rulesPath
	}
	if e.logLevel != "" {
		cfg.LogLevel = e.logLevel
	}
	log, err := logx.New(logx.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Locale: cfg.LogLocale,
		Color:  cfg.LogColor,
		File:   cfg.LogFile,
		Out:    logOut,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a, err := e.open(cfg, log)
	if err != nil {
		log.Close()
		return err
	}
	e.cfg, e.log, e.app = cfg, log, a
	return nil
}

func (e *env) teardown() error {
	var errs []error
	if e.app != nil {
		errs = append(errs, e.app.Close())
		e.app = nil
	}
	if e.log != nil {
		errs = append(errs, e.log.Close())
		e.log = nil
	}
	return errors.Join(errs...)
}

// Run 执行一次命令；无论成功与否都会关闭 App 与日志。
func Run(ctx context.Context, args []string, stdout, stderr io.Writer, open Opener) error {
	root, e := newRootCmd(open)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if cerr := e.teardown(); err == nil {
		err = cerr
	}
	return err
}

// Execute 运行命令行；失败时输出可读的错误并以非零状态退出。
func Execute(ctx context.Context) {
	if err := Run(ctx, os.Args[1:], os.Stdout, os.Stderr, nil); err != nil {
		fmt.Fprintln(os.Stderr, "错误:", describe(err))
		os.Exit(1)
	}
}
