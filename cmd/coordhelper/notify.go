package main

import (
	"github.com/coreos/go-systemd/v22/daemon"
	log "github.com/sirupsen/logrus"
)

// notifyReady tells the service manager that startup completed. It is a no-op
// when not started by systemd with Type=notify.
func notifyReady() {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		log.WithError(err).Warn("failed to notify service manager")
		return
	}

	log.WithField("sent", sent).Debug("notified service manager")
}
