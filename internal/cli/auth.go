package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login [密码]",
	Short: "登录号池后端",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password := ""
		if len(args) == 1 {
			password = args[0]
		} else {
			fmt.Print("密码: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return fmt.Errorf("读取密码失败: %w", err)
			}
			password = strings.TrimSpace(line)
		}

		snap, err := app.Store.Login(cmd.Context(), password)
		if err != nil {
			return err
		}
		fmt.Println(okStyle.Render("登录成功"))
		printAccount(snap.Session.Role, snap.Session.Balance)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "退出登录",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Store.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Println(okStyle.Render("已退出登录"))
		return nil
	},
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "查看当前账号状态",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snap := app.Store.Snapshot()
		if !snap.Authenticated {
			fmt.Println(dimStyle.Render("未登录"))
			return nil
		}
		printAccount(snap.Session.Role, snap.Session.Balance)
		fmt.Println(kv("登录时间", snap.Session.LoggedInAt.Format("2006-01-02 15:04:05")))
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "重新拉取账号状态",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := app.Store.Refresh(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(okStyle.Render("已刷新"))
		printAccount(snap.Session.Role, snap.Session.Balance)
		return nil
	},
}

func printAccount(role string, balance float64) {
	fmt.Println(kv("角色", role))
	fmt.Println(kv("余额", fmt.Sprintf("¥%.2f", balance)))
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, accountCmd, refreshCmd)
}
