package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xn030523/Warp-Plus/internal/usage"
)

var usageWatch bool

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "查询 Warp 账号额度",
	Long: `查询当前 Warp 账号的请求额度。

凭据优先取本地 Warp 客户端的登录信息，没有时退回最近领取的
Token。在线查询失败时展示本地缓存的上次结果。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !usageWatch {
			snap, err := app.Usage.Fetch(cmd.Context())
			if err != nil {
				return err
			}
			printUsage(snap)
			return nil
		}

		fmt.Println(dimStyle.Render(fmt.Sprintf("每 %s 自动刷新，Ctrl+C 退出...", app.Config.Usage.RefreshInterval)))
		handle := app.Usage.Watch(cmd.Context(), func(snap *usage.Snapshot, err error) {
			if err != nil {
				fmt.Println(errorStyle.Render("查询失败: " + err.Error()))
				return
			}
			printUsage(snap)
		})
		defer handle.Cancel()

		waitForInterrupt(cmd.Context().Done())
		return nil
	},
}

func printUsage(snap *usage.Snapshot) {
	if snap.Source == usage.SourceCache {
		fmt.Println(warnStyle.Render(fmt.Sprintf("在线查询失败，以下为 %s 的缓存",
			snap.FetchedAt.Format("01-02 15:04"))))
	}
	if snap.Email != "" {
		fmt.Println(kv("账号", snap.Email))
	}
	if snap.IsUnlimited {
		fmt.Println(kv("额度", "无限制"))
		return
	}
	fmt.Println(kv("额度", fmt.Sprintf("%d / %d（剩余 %d）",
		snap.RequestsUsed, snap.RequestLimit, snap.RequestsRemaining)))
	if snap.NextRefreshTime != "" {
		fmt.Println(kv("下次重置", snap.NextRefreshTime))
	}
}

func init() {
	usageCmd.Flags().BoolVar(&usageWatch, "watch", false, "持续轮询额度")
	rootCmd.AddCommand(usageCmd)
}
