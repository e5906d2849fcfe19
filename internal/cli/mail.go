package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xn030523/Warp-Plus/internal/gateway"
	"github.com/xn030523/Warp-Plus/internal/mailbox"
)

var mailWatch bool

var mailCmd = &cobra.Command{
	Use:   "mail",
	Short: "生成临时邮箱并收取验证码",
	Long: `生成一个临时邮箱地址，用于接收 Warp 的登录验证码。

默认拉取一次收件箱就退出；--watch 持续轮询，新邮件到达即打印，
Ctrl+C 退出。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		address, err := app.Mailbox.Regenerate(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(kv("邮箱地址", address))

		if !mailWatch {
			if err := app.Mailbox.RefreshNow(cmd.Context()); err != nil {
				return err
			}
			printMessages(app.Mailbox.Snapshot().Messages)
			return nil
		}

		fmt.Println(dimStyle.Render("正在收取新邮件，Ctrl+C 退出..."))
		seen := 0
		unsubscribe := app.Mailbox.Subscribe(func(snap mailbox.Snapshot) {
			if len(snap.Messages) > seen {
				printMessages(snap.Messages[seen:])
				seen = len(snap.Messages)
			}
		})
		defer unsubscribe()

		waitForInterrupt(cmd.Context().Done())
		return nil
	},
}

func printMessages(messages []gateway.EmailMessage) {
	if len(messages) == 0 {
		fmt.Println(dimStyle.Render("收件箱为空"))
		return
	}
	for _, m := range messages {
		at := time.UnixMilli(m.Timestamp).Format("15:04:05")
		fmt.Printf("%s %s  %s\n", dimStyle.Render(at), valueStyle.Render(m.Subject), labelStyle.Render(m.From))
		if m.Content != "" {
			fmt.Println(m.Content)
		}
	}
}

func waitForInterrupt(done <-chan struct{}) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	select {
	case <-sig:
	case <-done:
	}
}

func init() {
	mailCmd.Flags().BoolVar(&mailWatch, "watch", false, "持续轮询收件箱")
	rootCmd.AddCommand(mailCmd)
}
