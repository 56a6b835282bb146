// Package systemd reports session state to the service manager when the
// supervisor runs under a systemd unit. Outside systemd every call is a no-op.
package systemd

import (
	"log/slog"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify state updates.
type Notifier struct {
	send   func(state string) (bool, error)
	logger *slog.Logger
}

// NewNotifier creates a notifier that talks to $NOTIFY_SOCKET.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		send: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
		logger: logger,
	}
}

// Ready reports that the session's processes are up.
func (n *Notifier) Ready() { n.notify(daemon.SdNotifyReady) }

// Stopping reports that shutdown has begun.
func (n *Notifier) Stopping() { n.notify(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(msg string) { n.notify("STATUS=" + msg) }

func (n *Notifier) notify(state string) {
	if n == nil {
		return
	}
	sent, err := n.send(state)
	if err != nil {
		n.logger.Debug("sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		n.logger.Debug("sd_notify sent", "state", state)
	}
}
