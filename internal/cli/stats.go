package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "查看号池库存",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := app.Backend.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(kv("号池总量", fmt.Sprintf("%d", data.Total)))
		fmt.Println(kv("Pro 试用", fmt.Sprintf("%d", data.ProTrial)))
		fmt.Println(kv("2500 额度", fmt.Sprintf("%d", data.Limit2500)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
