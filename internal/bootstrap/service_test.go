package bootstrap

import (
	"context"
	"errors"
	"testing"

	systemd "github.com/coreos/go-systemd/v22/dbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSystemd struct {
	started []string
	result  string
	units   []systemd.UnitStatus
	closed  int
}

func (f *fakeSystemd) StartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error) {
	f.started = append(f.started, name+" "+mode)
	ch <- f.result
	return 1, nil
}

func (f *fakeSystemd) ListUnitsByNamesContext(ctx context.Context, units []string) ([]systemd.UnitStatus, error) {
	return f.units, nil
}

func (f *fakeSystemd) Close() {
	f.closed++
}

func systemdWith(conn *fakeSystemd) *SystemdServices {
	return &SystemdServices{connect: func(context.Context) (systemdConn, error) { return conn, nil }}
}

func TestSystemdServices_Start(t *testing.T) {
	conn := &fakeSystemd{result: "done"}
	require.NoError(t, systemdWith(conn).Start(context.Background(), "codedeploy-agent"))
	assert.Equal(t, []string{"codedeploy-agent.service replace"}, conn.started)
	assert.Equal(t, 1, conn.closed)

	conn = &fakeSystemd{result: "failed"}
	err := systemdWith(conn).Start(context.Background(), "codedeploy-agent.service")
	var ie *InstallError
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, err.Error(), `"failed"`)
}

func TestSystemdServices_Status(t *testing.T) {
	conn := &fakeSystemd{units: []systemd.UnitStatus{{
		Name:        "codedeploy-agent.service",
		ActiveState: "active",
		SubState:    "running",
	}}}
	status, err := systemdWith(conn).Status(context.Background(), "codedeploy-agent")
	require.NoError(t, err)
	assert.Equal(t, "codedeploy-agent.service is active (running)", status)

	status, err = systemdWith(&fakeSystemd{}).Status(context.Background(), "codedeploy-agent")
	require.NoError(t, err)
	assert.Equal(t, "codedeploy-agent.service is not loaded", status)
}

func TestSystemdServices_ConnectError(t *testing.T) {
	s := &SystemdServices{connect: func(context.Context) (systemdConn, error) {
		return nil, errors.New("no bus")
	}}
	_, err := s.Status(context.Background(), "codedeploy-agent")
	assert.ErrorContains(t, err, "unable to connect to systemd")
}

func TestCommandServices_StatusWithoutOutput(t *testing.T) {
	s := &CommandServices{Runner: &fakeRunner{fail: "service"}}
	_, err := s.Status(context.Background(), "codedeploy-agent")
	assert.ErrorContains(t, err, "failed to query codedeploy-agent status")
}
