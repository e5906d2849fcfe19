package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xn030523/Warp-Plus/internal/recharge"
	"github.com/xn030523/Warp-Plus/internal/router"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "进入交互模式",
	Long: `进入交互模式，按页面组织操作。

需要登录的页面在未登录或会话失效时会自动跳回登录页。
输入 help 查看当前页面可用的操作，exit 退出。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, unsubscribe := router.New(app.Store)
		defer unsubscribe()

		fmt.Println(headerStyle.Render("Warp-Plus 交互模式"))
		fmt.Println(dimStyle.Render("help 查看操作，exit 退出"))

		reader := bufio.NewReader(os.Stdin)
		for {
			fmt.Print(prompt(r))
			line, err := reader.ReadString('\n')
			if err == io.EOF {
				fmt.Println()
				return nil
			}
			if err != nil {
				return err
			}

			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			if fields[0] == "exit" || fields[0] == "quit" {
				return nil
			}
			if err := dispatch(cmd, r, fields); err != nil {
				fmt.Println(errorStyle.Render(err.Error()))
			}
		}
	},
}

func prompt(r *router.Router) string {
	snap := app.Store.Snapshot()
	mark := dimStyle.Render("[未登录]")
	if snap.Authenticated {
		mark = okStyle.Render(fmt.Sprintf("[¥%.2f]", snap.Session.Balance))
	}
	return fmt.Sprintf("%s %s> ", mark, string(r.Current()))
}

// dispatch 处理一条交互命令
//
// go <视图> 切页，其余命令复用对应子命令的逻辑
func dispatch(cmd *cobra.Command, r *router.Router, fields []string) error {
	switch fields[0] {
	case "help":
		printShellHelp()
		return nil

	case "go":
		if len(fields) != 2 {
			return fmt.Errorf("用法: go <视图>")
		}
		got, err := r.Navigate(router.View(fields[1]))
		if err != nil {
			return err
		}
		if string(got) != fields[1] {
			fmt.Println(warnStyle.Render("需要先登录"))
		}
		return nil

	case "login":
		password := ""
		if len(fields) > 1 {
			password = fields[1]
		}
		snap, err := app.Store.Login(cmd.Context(), password)
		if err != nil {
			return err
		}
		fmt.Println(okStyle.Render("登录成功"))
		printAccount(snap.Session.Role, snap.Session.Balance)
		return nil

	case "logout":
		if err := app.Store.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Println(okStyle.Render("已退出登录"))
		return nil

	case "refresh":
		snap, err := app.Store.Refresh(cmd.Context())
		if err != nil {
			return err
		}
		printAccount(snap.Session.Role, snap.Session.Balance)
		return nil

	case "claim":
		data, err := app.Claims.Claim(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(kv("邮箱", data.Email))
		fmt.Println(kv("refresh_token", data.RefreshToken))
		fmt.Println(kv("当前余额", fmt.Sprintf("¥%.2f", data.NewBalance)))
		return nil

	case "tokens":
		records, fromLocal, err := app.Claims.ListTokens(cmd.Context())
		if err != nil {
			return err
		}
		if fromLocal {
			fmt.Println(warnStyle.Render("后端不可用，以下为本地缓存"))
		}
		for _, rec := range records {
			fmt.Printf("%d  %s  %d\n", rec.ID, rec.Email, rec.AILimit)
		}
		return nil

	case "recharge":
		if len(fields) != 2 {
			return fmt.Errorf("用法: recharge <金额>")
		}
		amount, err := recharge.ParseAmount(fields[1])
		if err != nil {
			return err
		}
		order, err := app.Recharges.CreateOrder(cmd.Context(), amount)
		if err != nil {
			return err
		}
		fmt.Println(kv("支付链接", order.PaymentURL))
		fmt.Println(dimStyle.Render("支付后执行 close 对账"))
		return nil

	case "close":
		snap, err := app.Recharges.ClosePayment(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(kv("当前余额", fmt.Sprintf("¥%.2f", snap.Session.Balance)))
		return nil

	case "mail":
		address, err := app.Mailbox.Regenerate(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(kv("邮箱地址", address))
		return nil

	case "inbox":
		if err := app.Mailbox.RefreshNow(cmd.Context()); err != nil {
			return err
		}
		printMessages(app.Mailbox.Snapshot().Messages)
		return nil

	case "usage":
		snap, err := app.Usage.Fetch(cmd.Context())
		if err != nil {
			return err
		}
		printUsage(snap)
		return nil

	case "stats":
		data, err := app.Backend.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(kv("号池总量", fmt.Sprintf("%d", data.Total)))
		return nil

	default:
		return fmt.Errorf("未知命令 %q，输入 help 查看可用操作", fields[0])
	}
}

func printShellHelp() {
	views := make([]string, 0, len(router.Views()))
	for v := range router.Views() {
		views = append(views, string(v))
	}
	fmt.Println(headerStyle.Render("可用操作"))
	fmt.Println("  go <视图>          切换页面: " + strings.Join(views, " "))
	fmt.Println("  login [密码]       登录")
	fmt.Println("  logout / refresh   退出 / 刷新账号")
	fmt.Println("  claim / tokens     领取 Token / 查看已领取")
	fmt.Println("  recharge <金额>    充值，之后用 close 对账")
	fmt.Println("  mail / inbox       生成邮箱 / 收取邮件")
	fmt.Println("  usage / stats      查询额度 / 号池库存")
	fmt.Println("  exit               退出")
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
