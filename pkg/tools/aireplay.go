package tools

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/config"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/process"
)

// Aireplay sends deauthentication frames with aireplay-ng
type Aireplay struct {
	cfg     config.Config
	tracker *process.Tracker
	logger  *logrus.Logger
}

// NewAireplay creates a deauth sender for cfg.Interface
func NewAireplay(cfg config.Config, tracker *process.Tracker, logger *logrus.Logger) *Aireplay {
	if logger == nil {
		logger = logrus.New()
	}
	return &Aireplay{cfg: cfg, tracker: tracker, logger: logger}
}

// DeauthArgs builds the aireplay-ng arguments. An empty client deauths the
// broadcast address.
func (a *Aireplay) DeauthArgs(bssid, essid, client string) []string {
	args := []string{
		"-0", strconv.Itoa(a.cfg.NumDeauths),
		"--ignore-negative-one",
		"-a", bssid,
		"-D",
	}
	if client != "" {
		args = append(args, "-c", client)
	}
	if essid != "" {
		args = append(args, "-e", essid)
	}
	return append(args, a.cfg.Interface)
}

// Deauth sends one round of deauthentication frames and waits for
// aireplay-ng to finish. Cancelling ctx interrupts it.
func (a *Aireplay) Deauth(ctx context.Context, bssid, essid, client string) error {
	target := "*broadcast*"
	if client != "" {
		target = client
	}
	a.logger.WithFields(logrus.Fields{"bssid": bssid, "client": target}).Debug("Sending deauth")

	_, err := process.Call(ctx, a.cfg.InterruptGrace, "aireplay-ng", a.DeauthArgs(bssid, essid, client), process.Options{
		Tracker: a.tracker,
		Logger:  a.logger,
	})
	if err != nil {
		return fmt.Errorf("deauth %s -> %s: %w", bssid, target, err)
	}
	return nil
}
