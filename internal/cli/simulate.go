package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateEvent   string
	simulateSection string
	simulateOld     float64
	simulateNew     float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-drop",
	Short: "模拟一次降价并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateEvent == "" {
			return errors.New("--event 不能为空")
		}
		if simulateOld <= 0 || simulateNew <= 0 {
			return errors.New("--old 与 --new 必须大于 0")
		}

		oldPrice := decimal.NewFromFloat(simulateOld)
		newPrice := decimal.NewFromFloat(simulateNew)
		return getApp().SimulateDrop(cmd.Context(), simulateEvent, simulateSection, oldPrice, newPrice)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateEvent, "event", "", "演出名称")
	simulateCmd.Flags().StringVar(&simulateSection, "section", "GA", "座位分区")
	simulateCmd.Flags().Float64Var(&simulateOld, "old", 0, "原价")
	simulateCmd.Flags().Float64Var(&simulateNew, "new", 0, "现价")
}
