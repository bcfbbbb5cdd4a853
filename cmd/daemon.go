//go:build linux

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/kbdlight/internal/config"
	"github.com/smazurov/kbdlight/internal/events"
	"github.com/smazurov/kbdlight/internal/input"
	"github.com/smazurov/kbdlight/internal/led"
	"github.com/smazurov/kbdlight/internal/logging"
	"github.com/smazurov/kbdlight/internal/metrics"
	"github.com/smazurov/kbdlight/internal/metrics/collectors"
	"github.com/smazurov/kbdlight/internal/metrics/exporters"
	"github.com/smazurov/kbdlight/internal/systemd"
	"github.com/smazurov/kbdlight/internal/version"
	"github.com/smazurov/kbdlight/pkg/linuxinput/hotplug"
)

const shutdownTimeout = 3 * time.Second

func runDaemon(cmd *cobra.Command, opts config.Options) error {
	settings, err := config.Load(opts, cmd)
	if err != nil {
		return err
	}

	logging.Initialize(settings.Logging)
	logger := logging.GetLogger("main")
	logger.Info("Starting kbdlight",
		"version", version.String(),
		"config", settings.Path,
		"timeout", settings.Timeout,
		"fade", settings.Fade,
		"brightness", settings.Brightness)

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	bus := events.New()
	collector := collectors.NewBusCollector(bus)
	collector.Start()
	defer collector.Stop()

	notifier := systemd.NewNotifier(logging.GetLogger("systemd"))
	notifierDone := notifier.Start(ctx, bus)

	// Bind the netlink socket before enumerating so no device added in
	// between is missed.
	group, _ := hotplug.ParseGroup(settings.Hotplug)
	source, err := input.NewNetlinkSource(group, logging.GetLogger("hotplug"))
	if err != nil {
		return fmt.Errorf("open hotplug socket: %w", err)
	}
	defer source.Close()

	leds, err := led.Open(settings.LEDs, settings.Brightness, settings.Fade, led.Options{
		Logger: logging.GetLogger("led"),
		Bus:    bus,
	})
	if err != nil {
		return fmt.Errorf("open LEDs: %w", err)
	}
	defer leds.Close()
	metrics.SetLEDsActive(leds.Len())

	filter := input.FilterFromNames(settings.Inputs)
	logger.Debug("Input filter", "filter", filter)
	mon, err := input.Spawn(ctx, input.Options{
		Filter:  filter,
		Hotplug: source,
		Bus:     bus,
	}, logging.GetLogger("input"))
	if err != nil {
		if errors.Is(err, input.ErrPermission) {
			return fmt.Errorf("%w: run as root or add the user to the input group", err)
		}
		return err
	}

	mgr := led.NewManager(leds, mon.Activity().C(), settings.Timeout, logging.GetLogger("led"), led.WithEventBus(bus))

	if watcher := watchConfig(cmd, opts, settings, mgr); watcher != nil {
		defer watcher.Stop()
	}

	if settings.MetricsListen != "" {
		go func() {
			if err := exporters.Serve(ctx, settings.MetricsListen, logging.GetLogger("metrics")); err != nil {
				logger.Error("Metrics endpoint failed", "error", err)
			}
		}()
	}

	mgrDone := make(chan error, 1)
	go func() {
		mgrDone <- mgr.Run(ctx)
	}()

	notifier.TrackDevices(mon.OpenDevices)
	notifier.Ready(leds.Len())
	logger.Info("kbdlight running", "leds", leds.Names(), "input_devices", mon.OpenDevices())

	var runErr error
	monitorDone := false
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case runErr = <-mon.Done():
		monitorDone = true
		logger.Error("Input monitor stopped", "error", runErr)
	}

	notifier.Stopping()
	cancel()

	if err := <-mgrDone; err != nil && runErr == nil {
		runErr = err
	}
	// Readers exit once nobody consumes activity.
	mon.Activity().Close()
	if !monitorDone {
		waitFor(logger, "input monitor", mon.Done())
	}
	<-notifierDone

	return runErr
}

// watchConfig reloads tuning values when the config file changes. It returns
// nil when there is no file to watch.
func watchConfig(cmd *cobra.Command, opts config.Options, initial config.Settings, mgr *led.Manager) *config.Watcher[config.Settings] {
	if initial.Path == "" {
		return nil
	}
	logger := logging.GetLogger("config")

	loader := func(string) (config.Settings, error) {
		return config.Load(opts, cmd)
	}
	w := config.NewConfigWatcher(initial.Path, loader, logger)
	w.OnReload(func(next config.Settings) {
		if fields := initial.RestartRequired(next); len(fields) > 0 {
			logger.Warn("Config changes require a restart", "settings", fields)
		}
		logging.SetLevels(next.Logging.Level, next.Logging.Modules)
		mgr.Reload(next.Tuning())
	})

	if err := w.Start(); err != nil {
		logger.Warn("Config reload disabled", "path", initial.Path, "error", err)
		return nil
	}
	return w
}

func waitFor[T any](logger *slog.Logger, what string, ch <-chan T) {
	select {
	case <-ch:
	case <-time.After(shutdownTimeout):
		logger.Warn("Timed out waiting for shutdown", "component", what)
	}
}
