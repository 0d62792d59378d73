package upload

import (
	"fmt"
	"net"
	"os/exec"
)

// AlwaysOn reports a permanently available link. Used on mains powered
// nodes and in dev mode, where there is no radio to manage.
type AlwaysOn struct{}

func (AlwaysOn) IsConnected() bool { return true }
func (AlwaysOn) Enable() error     { return nil }
func (AlwaysOn) Disable() error    { return nil }

// Rfkill powers a wireless interface up and down through rfkill, and
// reports link state from the interface flags. Battery nodes keep the radio
// blocked between upload passes.
type Rfkill struct {
	// Interface is the wireless interface name, e.g. "wlan0".
	Interface string
	// ID is the rfkill identifier passed to rfkill block/unblock,
	// e.g. "wifi".
	ID string
}

func (r Rfkill) IsConnected() bool {
	ifc, err := net.InterfaceByName(r.Interface)
	if err != nil {
		return false
	}
	return ifc.Flags&net.FlagUp != 0 && ifc.Flags&net.FlagRunning != 0
}

func (r Rfkill) Enable() error {
	if out, err := exec.Command("rfkill", "unblock", r.ID).CombinedOutput(); err != nil {
		return fmt.Errorf("rfkill unblock %s: %w: %s", r.ID, err, out)
	}
	return nil
}

func (r Rfkill) Disable() error {
	if out, err := exec.Command("rfkill", "block", r.ID).CombinedOutput(); err != nil {
		return fmt.Errorf("rfkill block %s: %w: %s", r.ID, err, out)
	}
	return nil
}
