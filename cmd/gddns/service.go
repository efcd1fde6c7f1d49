package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Travis-Britz/gddns/mlog"
)

// daemonService runs the daemon under the system service manager.
type daemonService struct {
	cancel context.CancelFunc
	done   chan error
}

func (s *daemonService) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)
	go func() {
		err := runDaemon(ctx)
		if err != nil && ctx.Err() == nil {
			mlog.L().Fatal("daemon exited", zap.Error(err))
		}
		s.done <- err
	}()
	return nil
}

func (s *daemonService) Stop(service.Service) error {
	s.cancel()
	return <-s.done
}

// newSvcConfig describes the installed service.
// The service runs "gddns daemon" with the config file and cache dir given to this invocation.
func newSvcConfig() (*service.Config, error) {
	configFile, err := filepath.Abs(flags.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config file path, %w", err)
	}
	args := []string{"daemon", "--as-service", "--config-file", configFile}
	if flags.cacheDir != "" {
		cacheDir, err := filepath.Abs(flags.cacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve cache dir path, %w", err)
		}
		args = append(args, "--cache-dir", cacheDir)
	}
	return &service.Config{
		Name:        "gddns",
		DisplayName: "gddns",
		Description: "Keeps dynamic DNS records pointed at this host's public IP.",
		Arguments:   args,
	}, nil
}

var svc service.Service

func initService(_ *cobra.Command, _ []string) error {
	svcConfig, err := newSvcConfig()
	if err != nil {
		return err
	}
	s, err := service.New(new(daemonService), svcConfig)
	if err != nil {
		return fmt.Errorf("failed to init service, %w", err)
	}
	svc = s
	return nil
}

func newServiceCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "service",
		Short: "Manage the gddns daemon as a system service.",
	}
	c.PersistentPreRunE = initService
	c.AddCommand(
		newSvcControlCmd("install", "Install gddns as a system service.", func() error { return svc.Install() }),
		newSvcControlCmd("uninstall", "Uninstall the gddns service.", func() error { return svc.Uninstall() }),
		newSvcControlCmd("start", "Start the gddns service.", func() error { return svc.Start() }),
		newSvcControlCmd("stop", "Stop the gddns service.", func() error { return svc.Stop() }),
		newSvcControlCmd("restart", "Restart the gddns service.", func() error { return svc.Restart() }),
		newSvcStatusCmd(),
	)
	return c
}

func newSvcControlCmd(action, short string, f func() error) *cobra.Command {
	return &cobra.Command{
		Use:          action,
		Short:        short,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f(); err != nil {
				return fmt.Errorf("failed to %s service, %w", action, err)
			}
			mlog.L().Info("service "+action+" done", zap.String("platform", service.Platform()))
			return nil
		},
	}
}

func newSvcStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "status",
		Short:        "Show the status of the gddns service.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := svc.Status()
			if err != nil {
				return fmt.Errorf("cannot get service status, %w", err)
			}
			var out string
			switch s {
			case service.StatusRunning:
				out = "running"
			case service.StatusStopped:
				out = "stopped"
			default:
				out = "unknown"
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}
