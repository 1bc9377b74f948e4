package vkng

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/katgfx/kat/driver"
)

// check converts a call's result code and error into the driver error
// vocabulary. Out-of-date and suboptimal swapchains and expired waits map
// to their driver sentinels; everything else is wrapped with op.
func check(op string, res common.VkResult, err error) error {
	switch res {
	case khr_swapchain.VKErrorOutOfDate:
		return errors.Wrap(driver.ErrOutOfDate, op)
	case khr_swapchain.VKSuboptimal:
		return errors.Wrap(driver.ErrSuboptimal, op)
	case core1_0.VKTimeout:
		return errors.Wrap(driver.ErrTimeout, op)
	}
	if err != nil {
		return errors.Wrapf(err, "%s (%s)", op, res)
	}
	return nil
}

// waitTimeout translates a driver timeout. Negative waits poll.
func waitTimeout(d time.Duration) time.Duration {
	switch {
	case d == driver.NoTimeout:
		return common.NoTimeout
	case d < 0:
		return 0
	}
	return d
}
