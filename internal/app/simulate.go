package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"ticket-drop-alerts/internal/alerting"
)

// SimulateDrop 通过给定的新旧价格模拟一次降价告警流程。
func (a *App) SimulateDrop(ctx context.Context, eventName, section string, oldPrice, newPrice decimal.Decimal) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	if !newPrice.LessThan(oldPrice) {
		return errors.New("new price must be below old price")
	}
	if !oldPrice.IsPositive() {
		return errors.New("old price must be positive")
	}

	dropPct := oldPrice.Sub(newPrice).Div(oldPrice).Mul(decimal.NewFromInt(100)).Round(2)

	note := alerting.Notification{
		EventName:  eventName,
		Venue:      a.Config.App.Venue,
		Section:    section,
		OldPrice:   oldPrice,
		NewPrice:   newPrice,
		DropPct:    dropPct,
		DetectedAt: time.Now().UTC(),
	}
	return notifier.Notify(ctx, note)
}
