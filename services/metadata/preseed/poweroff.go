package preseed

import "time"

// Sentinel file whose presence suppresses the post-commissioning power off,
// so an external safety check can keep a machine up.
const blockPowerOffFile = "/tmp/block-poweroff"

// PowerOff is the post-commissioning power-off decision for a machine.
type PowerOff struct {
	Enabled   bool
	Timeout   int // seconds
	Condition string
}

// PowerOffFor decides power-off behaviour from machine status: machines
// entering rescue mode stay up, disk-erasing machines get a week to finish,
// everything else powers off after an hour.
func PowerOffFor(status Status) PowerOff {
	if status == StatusEnteringRescueMode {
		return PowerOff{}
	}
	timeout := int(time.Hour.Seconds())
	if status == StatusDiskErasing {
		timeout = int((7 * 24 * time.Hour).Seconds())
	}
	return PowerOff{
		Enabled:   true,
		Timeout:   timeout,
		Condition: "test ! -e " + blockPowerOffFile,
	}
}
