package units

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"droidpanel/internal/scheduler"
	"droidpanel/internal/session"
)

// DeviceHealthProbe polls device vitals through the driver. Beyond the
// numbers it reports, a probe run doubles as an end-to-end check that the
// instrumentation is still answering between interactive uses.
type DeviceHealthProbe struct {
	// MinBatteryPct marks the run as failed below this level so the
	// notifier pings the operator before the device dies mid-suite.
	MinBatteryPct int
}

func NewDeviceHealthProbe() *DeviceHealthProbe {
	return &DeviceHealthProbe{MinBatteryPct: 15}
}

func (u *DeviceHealthProbe) Name() string { return "device-health-probe" }

func (u *DeviceHealthProbe) Recurrence() *scheduler.Recurrence {
	return &scheduler.Recurrence{
		Period:   15 * time.Minute,
		Position: 0,
		Jitter:   time.Minute,
	}
}

func (u *DeviceHealthProbe) Execute(ctx context.Context, sess *session.Lease) (scheduler.Result, error) {
	res, err := sess.Invoke(ctx, "deviceInfo", nil)
	if err != nil {
		return scheduler.Result{}, err
	}

	var info struct {
		Battery int    `json:"battery"`
		Temp    int    `json:"temperature"`
		Display string `json:"display"`
	}
	if err := json.Unmarshal(res.Value, &info); err != nil {
		return scheduler.Result{Message: "unparseable deviceInfo payload"}, nil
	}

	msg := fmt.Sprintf("battery=%d%% temp=%d display=%s", info.Battery, info.Temp, info.Display)
	if info.Battery > 0 && info.Battery < u.MinBatteryPct {
		return scheduler.Result{Message: "battery low: " + msg, Data: info}, nil
	}
	return scheduler.Result{Success: true, Message: msg, Data: info}, nil
}
