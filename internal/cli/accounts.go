package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newAccountsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "accounts",
		Aliases: []string{"account", "acc"},
		Short:   "Manage stored creator accounts.",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List all stored accounts.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				list, err := e.app.ListAccounts(cmd.Context())
				if err != nil {
					return err
				}
				renderAccounts(cmd.OutOrStdout(), list)
				return nil
			},
		},
		&cobra.Command{
			Use:   "login",
			Short: "Open a browser, wait for an interactive login and store the account.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				name, err := e.app.AddAccount(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "账号 %s 添加成功\n", name)
				return nil
			},
		},
		newImportCmd(e),
		&cobra.Command{
			Use:   "remove <username>...",
			Short: "Remove accounts by username.",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				for _, name := range args {
					ok, err := e.app.RemoveAccount(cmd.Context(), name)
					if err != nil {
						return err
					}
					if ok {
						fmt.Fprintf(cmd.OutOrStdout(), "已删除：%s\n", name)
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "不存在：%s\n", name)
					}
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "repair",
			Short: "Delete accounts whose stored cookies cannot be parsed.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := e.app.RepairAccounts(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "已清理 %d 个损坏的账号\n", n)
				return nil
			},
		},
		&cobra.Command{
			Use:   "check [username]...",
			Short: "Check whether stored cookies are still accepted (no browser).",
			RunE: func(cmd *cobra.Command, args []string) error {
				if len(args) == 0 {
					list, err := e.app.ListAccounts(cmd.Context())
					if err != nil {
						return err
					}
					for _, a := range list {
						args = append(args, a.Username)
					}
				}
				t := newTable(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"账号", "状态", "HTTP", "最终地址"})
				for _, name := range args {
					c, err := e.app.CheckAccount(cmd.Context(), name)
					if err != nil {
						t.AppendRow(table.Row{name, describe(err), "-", "-"})
						continue
					}
					t.AppendRow(table.Row{name, string(c.State), c.HTTPStatus, c.FinalURL})
				}
				t.Render()
				return nil
			},
		},
	)
	return cmd
}

func newImportCmd(e *env) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import <username>",
		Short: "Store an account from exported cookies (JSON file or stdin).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open cookies file: %w", err)
				}
				defer f.Close()
				r = f
			}
			b, err := io.ReadAll(r)
			if err != nil {
				return fmt.Errorf("read cookies: %w", err)
			}
			name := strings.TrimSpace(args[0])
			if err := e.app.ImportAccount(cmd.Context(), name, string(b)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "账号 %s 导入成功\n", name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "cookies JSON file, '-' for stdin")
	return cmd
}
