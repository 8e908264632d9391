package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tt-creator/internal/task"
)

func newArticlesCmd(e *env) *cobra.Command {
	var exportPath string
	var all bool
	cmd := &cobra.Command{
		Use:   "articles [username]",
		Short: "Scrape the article list of an account (or all accounts with --all).",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if all {
				results, err := e.app.FetchAll(cmd.Context())
				if err != nil {
					return err
				}
				renderResults(out, results)
			} else {
				// 抓取在后台进行，这里只等待结果
				var res task.Result
				select {
				case res = <-e.app.FetchArticles(cmd.Context(), args[0]):
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				}
				if res.Err != nil {
					return res.Err
				}
				renderArticles(out, res.Articles)
				fmt.Fprintf(out, "账号 %s 共 %d 篇文章\n", res.Username, len(res.Articles))
			}
			if exportPath != "" {
				if err := e.app.Export(exportPath); err != nil {
					return err
				}
				fmt.Fprintf(out, "已导出到 %s\n", exportPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&exportPath, "export", "", "write results to this JSON file")
	cmd.Flags().BoolVar(&all, "all", false, "scrape every stored account")
	return cmd
}

func newWatchCmd(e *env) *cobra.Command {
	var interval time.Duration
	var exportPath string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Periodically scrape all accounts until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := e.app.Watch(cmd.Context(), interval, exportPath)
			if cmd.Context().Err() != nil {
				// Ctrl+C 视为正常退出
				return nil
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "time between rounds (default SCRAPE.watch_interval)")
	cmd.Flags().StringVar(&exportPath, "export", "", "write results to this JSON file after each round")
	return cmd
}
