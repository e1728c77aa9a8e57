package main

import (
	"fmt"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// serviceCmd manages ctxkeep as a system service (systemd, launchd, or
// Windows SCM, depending on the platform).
func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install or control the system service",
	}
	cmd.PersistentFlags().StringP("config", "c", "", "Configuration file the service starts with")
	cmd.AddCommand(
		serviceControlCmd("install", "Install ctxkeep as a system service"),
		serviceControlCmd("uninstall", "Remove the system service"),
		serviceControlCmd("start", "Start the installed service"),
		serviceControlCmd("stop", "Stop the installed service"),
		serviceStatusCmd(),
	)
	return cmd
}

func serviceControlCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			svc, err := newService(cfgPath)
			if err != nil {
				return err
			}
			if err := service.Control(svc, action); err != nil {
				return err
			}
			fmt.Printf("service %s: ok\n", action)
			return nil
		},
	}
}

func serviceStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the service is running",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			svc, err := newService(cfgPath)
			if err != nil {
				return err
			}
			status, err := svc.Status()
			if err != nil {
				return err
			}
			switch status {
			case service.StatusRunning:
				fmt.Println("running")
			case service.StatusStopped:
				fmt.Println("stopped")
			default:
				fmt.Println("unknown")
			}
			return nil
		},
	}
}

// newService describes the unit the platform service manager runs. The
// unit execs `ctxkeep start`, which supervises itself and handles the
// manager's stop signal.
func newService(cfgPath string) (service.Service, error) {
	args := []string{"start"}
	if cfgPath != "" {
		args = append(args, "--config", cfgPath)
	}
	return service.New(&program{}, &service.Config{
		Name:        "ctxkeep",
		DisplayName: "ctxkeep context window manager",
		Description: "Tracks, prunes, and compacts context windows for conversational agents.",
		Arguments:   args,
	})
}

// program satisfies service.Interface. Control actions never call these;
// the daemon lifecycle lives in `ctxkeep start`.
type program struct{}

func (p *program) Start(service.Service) error { return nil }
func (p *program) Stop(service.Service) error  { return nil }
