package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "领取一个 Warp Token（消耗余额）",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(dimStyle.Render(fmt.Sprintf("单价 ¥%.0f/个，以后端实际扣费为准", app.Config.Claim.UnitPrice)))
		// 库存只是参考信息，拿不到不影响领取
		if stats, err := app.Backend.Stats(cmd.Context()); err == nil {
			fmt.Println(dimStyle.Render(fmt.Sprintf("号池库存 %d（Pro 试用 %d / 2500 额度 %d）",
				stats.Total, stats.ProTrial, stats.Limit2500)))
		}

		data, err := app.Claims.Claim(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Println(okStyle.Render("领取成功"))
		fmt.Println(kv("邮箱", data.Email))
		fmt.Println(kv("额度", fmt.Sprintf("%d", data.AILimit)))
		fmt.Println(kv("refresh_token", data.RefreshToken))
		fmt.Println(kv("当前余额", fmt.Sprintf("¥%.2f", data.NewBalance)))
		return nil
	},
}

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "查看已领取的 Token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		records, fromLocal, err := app.Claims.ListTokens(cmd.Context())
		if err != nil {
			return err
		}
		if fromLocal {
			fmt.Println(warnStyle.Render("后端不可用，以下为本地缓存"))
		}
		if len(records) == 0 {
			fmt.Println(dimStyle.Render("还没有领取过 Token"))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, headerStyle.Render("ID")+"\t"+headerStyle.Render("邮箱")+"\t"+
			headerStyle.Render("额度")+"\t"+headerStyle.Render("领取时间"))
		for _, r := range records {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", r.ID, r.Email, r.AILimit, r.CreatedAt)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(claimCmd, tokensCmd)
}
