package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var machineIDCmd = &cobra.Command{
	Use:   "machine-id",
	Short: "查看 Warp 机器标识 (ExperimentId)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := app.Machine.Get()
		if err != nil {
			return err
		}
		fmt.Println(kv("ExperimentId", res.Value))
		return nil
	},
}

var machineIDRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "轮换机器标识为新的随机 UUID",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := app.Machine.Rotate()
		if err != nil {
			return err
		}
		fmt.Println(okStyle.Render(res.Message))
		fmt.Println(kv("新 ExperimentId", res.Value))
		fmt.Println(dimStyle.Render("重启 Warp 后生效"))
		return nil
	},
}

var machineIDSetCmd = &cobra.Command{
	Use:   "set <uuid>",
	Short: "写入指定的机器标识",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := app.Machine.Set(args[0])
		if err != nil {
			return err
		}
		fmt.Println(okStyle.Render(res.Message))
		fmt.Println(kv("ExperimentId", res.Value))
		return nil
	},
}

func init() {
	machineIDCmd.AddCommand(machineIDRotateCmd, machineIDSetCmd)
	rootCmd.AddCommand(machineIDCmd)
}
