package app

import (
	"os"
	"os/signal"
	"syscall"

	"block-watch/config"
	"block-watch/domain/audit"
	"block-watch/domain/firewall"
	"block-watch/domain/lifecycle"
	"block-watch/domain/monitor"
	"block-watch/domain/store"
	"block-watch/domain/sweeper"

	"github.com/Murilovisque/logs/v3"
)

var (
	appStopped = make(chan bool, 1)
)

// Start assembles the daemon from config.Props and blocks until SIGINT or
// SIGTERM.
func Start() error {
	cfg := config.Props

	mgr := NewManager()
	sw := sweeper.New(mgr, cfg.SweepIntervalDuration())

	var monitors []monitor.Monitor
	for _, mc := range cfg.Monitors {
		m := monitor.NewTailFileMonitor()
		err := m.DecodeConfig(mc)
		if err != nil {
			return err
		}
		m.SetBlocker(mgr)
		logs.Infof("monitor '%s' bound to the lifecycle manager", m.GetName())
		monitors = append(monitors, m)
	}

	if err := sw.Start(); err != nil {
		return err
	}
	for _, m := range monitors {
		if err := m.Start(); err != nil {
			return err
		}
	}
	prepareStopHandler(sw, monitors)
	<-appStopped
	return nil
}

// NewManager builds a lifecycle manager from config.Props. The one-shot
// admin commands use it without the sweeper and the monitors.
func NewManager() *lifecycle.Manager {
	cfg := config.Props
	return lifecycle.NewManager(
		firewall.NewIPTables(cfg.FirewallPath, cfg.ExecTimeoutDuration()),
		store.New(cfg.StorePath),
		audit.New(cfg.AuditLogPath),
		cfg.BlockTTLDuration(),
	)
}

func prepareStopHandler(sw *sweeper.Sweeper, monitors []monitor.Monitor) {
	chSignal := make(chan os.Signal, 1)
	signal.Notify(chSignal, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-chSignal
		logs.Infof("signal received %v, stopping app...", s)
		for _, m := range monitors {
			err := m.StopAndWait()
			if err != nil {
				logs.Error(err)
			}
		}
		logs.Info("Monitors stopped")
		err := sw.StopAndWait()
		if err != nil {
			logs.Error(err)
		}
		logs.Info("Sweeper stopped")
		appStopped <- true
		close(appStopped)
	}()
}
