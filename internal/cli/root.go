// Package cli 提供 warp-plus 的命令行入口
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	devMode bool
	app     *App

	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "warp-plus",
	Short: "Warp 账号与 Token 管理工具",
	Long: `Warp-Plus 命令行版：登录号池后端，领取 Warp Token、
充值余额、收取临时邮箱验证码、查询账号额度、轮换机器标识。

常用命令:
  warp-plus login            # 登录
  warp-plus claim            # 领取一个 Token（消耗余额）
  warp-plus mail --watch     # 收取临时邮箱验证码
  warp-plus usage            # 查询 Warp 额度
  warp-plus shell            # 进入交互模式`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		app, err = newApp(devMode)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app != nil {
			app.Close()
		}
	},
}

// Execute 运行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("错误: "+err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "开发模式：彩色控制台日志")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
