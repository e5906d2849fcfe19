package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xn030523/Warp-Plus/internal/deeplink"
)

var (
	warpLoginToken string
	warpLoginState string
	warpLoginPrint bool
)

var warpLoginCmd = &cobra.Command{
	Use:   "warp-login --refresh-token <token> --state <state>",
	Short: "用 refresh_token 登录 Warp 桌面端",
	Long: `拼装 warp://auth/desktop_redirect 深链并唤起 Warp 桌面端。

--state 支持直接粘贴完整回调 URL，会自动提取其中的 state 参数。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		state := deeplink.ExtractState(warpLoginState)

		target, err := deeplink.BuildAuthURL(warpLoginToken, state)
		if err != nil {
			return err
		}

		if warpLoginPrint {
			fmt.Println(target)
			return nil
		}
		if err := deeplink.Open(target); err != nil {
			fmt.Println(warnStyle.Render("唤起失败，请手动打开:"))
			fmt.Println(target)
			return nil
		}
		fmt.Println(okStyle.Render("已唤起 Warp，请在桌面端确认登录"))
		return nil
	},
}

func init() {
	warpLoginCmd.Flags().StringVar(&warpLoginToken, "refresh-token", "", "Warp 账号的 refresh_token")
	warpLoginCmd.Flags().StringVar(&warpLoginState, "state", "", "state 参数或完整回调 URL")
	warpLoginCmd.Flags().BoolVar(&warpLoginPrint, "print", false, "只打印深链，不唤起 Warp")
	_ = warpLoginCmd.MarkFlagRequired("refresh-token")
	_ = warpLoginCmd.MarkFlagRequired("state")
	rootCmd.AddCommand(warpLoginCmd)
}
