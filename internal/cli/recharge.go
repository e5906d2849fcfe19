package cli

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xn030523/Warp-Plus/internal/deeplink"
	"github.com/xn030523/Warp-Plus/internal/recharge"
)

var rechargeNoOpen bool

var rechargeCmd = &cobra.Command{
	Use:   "recharge <金额>",
	Short: "充值余额（支付宝）",
	Long: `创建充值订单并打开支付页面。

支付（或放弃支付）后回到终端按回车，余额会自动对账刷新。`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := recharge.ParseAmount(args[0])
		if err != nil {
			return err
		}

		order, err := app.Recharges.CreateOrder(cmd.Context(), amount)
		if err != nil {
			return err
		}

		fmt.Println(kv("订单号", order.OutTradeNo))
		fmt.Println(kv("金额", fmt.Sprintf("¥%.2f", order.Amount)))
		if rechargeNoOpen {
			fmt.Println(kv("支付链接", order.PaymentURL))
		} else if err := deeplink.Open(order.PaymentURL); err != nil {
			fmt.Println(warnStyle.Render("自动打开失败，请手动访问:"))
			fmt.Println(order.PaymentURL)
		}

		fmt.Print(dimStyle.Render("完成支付后按回车刷新余额..."))
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')

		snap, err := app.Recharges.ClosePayment(cmd.Context())
		if err != nil {
			return fmt.Errorf("余额刷新失败，请稍后执行 refresh: %w", err)
		}
		fmt.Println(okStyle.Render("已对账"))
		fmt.Println(kv("当前余额", fmt.Sprintf("¥%.2f", snap.Session.Balance)))
		return nil
	},
}

func init() {
	rechargeCmd.Flags().BoolVar(&rechargeNoOpen, "no-open", false, "只打印支付链接，不自动打开")
	rootCmd.AddCommand(rechargeCmd)
}
