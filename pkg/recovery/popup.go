package recovery

import (
	"context"

	"github.com/devicelab-dev/droidpilot/pkg/core"
	"github.com/devicelab-dev/droidpilot/pkg/locator"
	"github.com/devicelab-dev/droidpilot/pkg/logger"
	"github.com/devicelab-dev/droidpilot/pkg/uitree"
)

// DismissPopup closes a popup or dialog covering the screen. hasPopup comes
// from the description service; without it a popup is inferred from a
// dismiss control shown next to a modal-sized element. It presses Back when
// no dismiss control exists. The returned bool reports whether it acted.
func DismissPopup(ctx context.Context, a core.Actuator, elements []uitree.ClickableElement, hasPopup bool) (bool, error) {
	dismiss, found := locator.FindDismiss(elements)
	if !hasPopup {
		_, modal := locator.BottomSheet(elements)
		if !found || !modal {
			return false, nil
		}
	}

	if found {
		logger.Info("dismissing popup via %q at (%d, %d)", dismiss.Element.Label(), dismiss.X, dismiss.Y)
		if err := a.Tap(ctx, dismiss.X, dismiss.Y); err != nil {
			return false, core.ErrActionExecutionFailed.WithCause(err)
		}
		return true, nil
	}

	logger.Info("no dismiss control for popup, pressing back")
	if err := a.PressKey(ctx, core.KeyBack); err != nil {
		return false, core.ErrActionExecutionFailed.WithCause(err)
	}
	return true, nil
}
