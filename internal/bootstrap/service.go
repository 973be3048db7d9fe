package bootstrap

import (
	"context"
	"fmt"
	"strings"

	systemd "github.com/coreos/go-systemd/v22/dbus"
)

// ServiceManager starts a host service and reports its status string.
type ServiceManager interface {
	Start(ctx context.Context, service string) error
	Status(ctx context.Context, service string) (string, error)
}

// CommandServices drives services through the SysV `service` command.
type CommandServices struct {
	Runner Runner
}

func (s *CommandServices) Start(ctx context.Context, service string) error {
	out, err := s.Runner.Run(ctx, "service", service, "start")
	if err != nil {
		return &InstallError{Step: "service " + service + " start", Output: out, Err: err}
	}
	return nil
}

// Status returns the output of `service <name> status`. A stopped service
// exits non-zero, so the output is returned even when the command fails.
func (s *CommandServices) Status(ctx context.Context, service string) (string, error) {
	out, err := s.Runner.Run(ctx, "service", service, "status")
	if err != nil && out == "" {
		return "", fmt.Errorf("failed to query %s status: %w", service, err)
	}
	return out, nil
}

// systemdConn is the part of the systemd D-Bus connection used here.
type systemdConn interface {
	StartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	ListUnitsByNamesContext(ctx context.Context, units []string) ([]systemd.UnitStatus, error)
	Close()
}

// SystemdServices drives services through systemd over D-Bus.
type SystemdServices struct {
	connect func(ctx context.Context) (systemdConn, error)
}

func NewSystemdServices() *SystemdServices {
	return &SystemdServices{
		connect: func(ctx context.Context) (systemdConn, error) {
			conn, err := systemd.NewWithContext(ctx)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
	}
}

func (s *SystemdServices) Start(ctx context.Context, service string) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return fmt.Errorf("unable to connect to systemd: %w", err)
	}
	defer conn.Close()

	unit := unitName(service)
	done := make(chan string, 1)
	if _, err := conn.StartUnitContext(ctx, unit, "replace", done); err != nil {
		return &InstallError{Step: "start " + unit, Err: err}
	}

	select {
	case result := <-done:
		if result != "done" {
			return &InstallError{Step: "start " + unit, Err: fmt.Errorf("job finished with result %q", result)}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status renders the unit state as "<unit> is <ActiveState> (<SubState>)".
func (s *SystemdServices) Status(ctx context.Context, service string) (string, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return "", fmt.Errorf("unable to connect to systemd: %w", err)
	}
	defer conn.Close()

	unit := unitName(service)
	units, err := conn.ListUnitsByNamesContext(ctx, []string{unit})
	if err != nil {
		return "", fmt.Errorf("unable to query unit %s: %w", unit, err)
	}
	if len(units) == 0 {
		return unit + " is not loaded", nil
	}
	u := units[0]
	return fmt.Sprintf("%s is %s (%s)", u.Name, u.ActiveState, u.SubState), nil
}

func unitName(service string) string {
	if strings.Contains(service, ".") {
		return service
	}
	return service + ".service"
}
