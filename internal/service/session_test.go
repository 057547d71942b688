package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/devsession/internal/config"
	"github.com/sshcollectorpro/devsession/internal/database"
	"github.com/sshcollectorpro/devsession/internal/model"
	sshpkg "github.com/sshcollectorpro/devsession/pkg/ssh"
	"github.com/sshcollectorpro/devsession/simulate"
)

const devicePassword = "nova"

const switchRunningConfig = `hostname sw1
!
version 15.0
!
vlan 10
 name users
!
interface GigabitEthernet0/1
 switchport access vlan 10
 shutdown
!
interface GigabitEthernet0/2
 switchport mode trunk
!
end
`

func startDevice(t *testing.T, name string, profile simulate.DeviceProfile) *simulate.Server {
	t.Helper()
	srv, err := simulate.NewServer(name, devicePassword, profile)
	require.NoError(t, err)
	require.NoError(t, srv.Start("127.0.0.1:0"))
	t.Cleanup(srv.Stop)
	return srv
}

type fixture struct {
	svc        *SessionService
	history    *HistoryStore
	archiveDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	gdb, err := database.Open(config.SQLiteConfig{Path: filepath.Join(dir, "history.db")})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	history := NewHistoryStore(gdb)
	archiveDir := filepath.Join(dir, "transcripts")
	svc := NewSessionService(Options{
		DefaultPort:    22,
		SSH:            sshpkg.Config{Timeout: 5 * time.Second, Deadline: 5 * time.Second},
		LegacyFamilies: []string{"switch"},
	}, history, &LocalArchiver{BaseDir: archiveDir})
	return &fixture{svc: svc, history: history, archiveDir: archiveDir}
}

func linuxDevice(t *testing.T) *simulate.Server {
	return startDevice(t, "web01", simulate.DeviceProfile{
		Family: "linux",
		Outputs: map[string]string{
			"hostname": "web01\n",
			"uname -r": "5.15.0-91-generic\n",
			"ip a": `1: lo: <LOOPBACK,UP,LOWER_UP> mtu 65536 qdisc noqueue state UNKNOWN
    link/loopback 00:00:00:00:00:00 brd 00:00:00:00:00:00
    inet 127.0.0.1/8 scope host lo
2: eth0: <BROADCAST,MULTICAST,UP,LOWER_UP> mtu 1500 qdisc fq_codel state UP
    link/ether 52:54:00:12:34:56 brd ff:ff:ff:ff:ff:ff
    inet 192.168.1.10/24 brd 192.168.1.255 scope global eth0
`,
		},
		RejectExec: []string{"reboot"},
	})
}

func switchDevice(t *testing.T, runningConfig string) *simulate.Server {
	return startDevice(t, "sw1", simulate.DeviceProfile{
		Family:       "switch",
		HostKeyType:  "ecdsa",
		SingleExec:   true,
		EnableSecret: "s3cret",
		Outputs: map[string]string{
			"terminal length 0":   "",
			"show running-config": runningConfig,
			"show clock":          "*10:00:00.000 UTC Mon Mar 1 2021",
		},
	})
}

func request(srv *simulate.Server, family string, commands ...string) Request {
	return Request{
		Hostname:     "127.0.0.1",
		Port:         srv.Port(),
		Username:     "admin",
		Password:     devicePassword,
		Commands:     commands,
		DeviceFamily: family,
	}
}

func TestExecuteLinux(t *testing.T) {
	f := newFixture(t)
	srv := linuxDevice(t)

	res, err := f.svc.Execute(context.Background(), request(srv, "linux", "hostname", "reboot", "uname -r", "  "))
	require.NoError(t, err)

	assert.Equal(t, sshpkg.StrategyDirectExec, res.Strategy)
	require.Len(t, res.Entries, 6)
	assert.Equal(t, "web01", res.Entries[1].Content)
	assert.Equal(t, sshpkg.EntryError, res.Entries[3].Type)
	assert.Equal(t, "5.15.0-91-generic", res.Entries[5].Content)

	rec, err := f.history.GetSession(res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusSuccess, rec.Status)
	assert.Equal(t, 3, rec.CommandCount)
	assert.False(t, rec.Legacy)
	require.Len(t, rec.Entries, 6)
	for i, e := range rec.Entries {
		assert.Equal(t, i, e.Seq)
		assert.Equal(t, string(res.Entries[i].Type), e.Type)
	}
	require.True(t, strings.HasPrefix(rec.ArchiveKey, "file://"))

	data, err := os.ReadFile(strings.TrimPrefix(rec.ArchiveKey, "file://"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "$ hostname\nweb01\n")
}

func TestExecuteSwitchUsesShellReplay(t *testing.T) {
	f := newFixture(t)
	srv := switchDevice(t, switchRunningConfig)

	req := request(srv, "cisco_switch", "show clock")
	req.ElevationSecret = "s3cret"
	res, err := f.svc.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, sshpkg.StrategyShellReplay, res.Strategy)
	require.Len(t, res.Entries, 3)
	assert.Equal(t, "enable ******", res.Entries[0].Content)
	assert.Equal(t, "*10:00:00.000 UTC Mon Mar 1 2021", res.Entries[2].Content)
	assert.Equal(t, 0, srv.ExecCount())

	rec, err := f.history.GetSession(res.SessionID)
	require.NoError(t, err)
	assert.True(t, rec.Legacy)
	for _, e := range rec.Entries {
		assert.NotContains(t, e.Content, "s3cret")
	}
	data, err := os.ReadFile(strings.TrimPrefix(rec.ArchiveKey, "file://"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "s3cret")
}

func TestExecuteConnectionFailure(t *testing.T) {
	f := newFixture(t)
	srv := linuxDevice(t)

	req := request(srv, "linux", "hostname")
	req.Password = "wrong"
	res, err := f.svc.Execute(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, res.Entries, 1)
	assert.Equal(t, sshpkg.EntryError, res.Entries[0].Type)
	assert.True(t, strings.HasPrefix(res.Entries[0].Content, "SSH Connection Error: "))
	assert.Equal(t, 0, srv.ExecCount())

	rec, err := f.history.GetSession(res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusFailed, rec.Status)
	assert.Empty(t, rec.ArchiveKey)
}

func TestExecuteInvalidRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Execute(context.Background(), Request{Username: "admin"})
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	_, err = f.svc.Execute(context.Background(), Request{Hostname: "10.0.0.1"})
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}

func TestConnectionTest(t *testing.T) {
	f := newFixture(t)
	srv := switchDevice(t, switchRunningConfig)

	res, err := f.svc.Test(context.Background(), request(srv, "switch", "show clock"))
	require.NoError(t, err)

	require.Len(t, res.Entries, 1)
	assert.Equal(t, sshpkg.EntryOutput, res.Entries[0].Type)
	assert.Equal(t, "SSH connection to 127.0.0.1 established successfully", res.Entries[0].Content)
}

func TestFetchConfigSwitch(t *testing.T) {
	f := newFixture(t)
	srv := switchDevice(t, switchRunningConfig)

	res, err := f.svc.FetchConfig(context.Background(), request(srv, "switch"))
	require.NoError(t, err)

	require.Empty(t, res.ParseError)
	require.NotNil(t, res.Device)
	require.NotNil(t, res.Device.Switch)
	assert.Equal(t, "sw1", res.Device.Hostname)
	assert.Equal(t, "15.0", res.Device.Version)
	assert.Equal(t, []string{"GigabitEthernet0/1", "GigabitEthernet0/2"}, res.Device.InterfaceNames())
	assert.Equal(t, 10, res.Device.Switch.Interfaces[0].VLAN)
	assert.True(t, res.Device.Switch.Interfaces[0].Shutdown)
	assert.Equal(t, "trunk", res.Device.Switch.Interfaces[1].SwitchportMode)

	snap, err := f.history.LatestSnapshot("127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, snap.SessionID)
	assert.Equal(t, "sw1", snap.Hostname)
	assert.Contains(t, snap.Model, `"GigabitEthernet0/1"`)
}

func TestFetchConfigLinux(t *testing.T) {
	f := newFixture(t)
	srv := linuxDevice(t)

	res, err := f.svc.FetchConfig(context.Background(), request(srv, "linux"))
	require.NoError(t, err)

	require.Empty(t, res.ParseError)
	require.NotNil(t, res.Device.Linux)
	assert.Equal(t, "web01", res.Device.Hostname)
	assert.Equal(t, "5.15.0-91-generic", res.Device.Version)
	assert.Equal(t, []string{"lo", "eth0"}, res.Device.InterfaceNames())
	assert.Equal(t, "192.168.1.10", res.Device.Linux.Interfaces[1].IPAddress)
	assert.Equal(t, 3, srv.ExecCount())
}

func TestFetchConfigParseError(t *testing.T) {
	f := newFixture(t)
	srv := switchDevice(t, "interface GigabitEthernet0/1\n shutdown\n")

	res, err := f.svc.FetchConfig(context.Background(), request(srv, "switch"))
	require.NoError(t, err)

	assert.Nil(t, res.Device)
	assert.Contains(t, res.ParseError, "hostname")
	assert.NotEmpty(t, res.Entries)

	snap, err := f.history.LatestSnapshot("127.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, snap.ParseError)
}

func TestFetchConfigUnsupportedFamily(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.FetchConfig(context.Background(), Request{Hostname: "10.0.0.1", Username: "admin", DeviceFamily: "windows"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestJoinOutputs(t *testing.T) {
	entries := []sshpkg.Entry{
		sshpkg.CommandEntry("hostname"),
		sshpkg.OutputEntry("web01"),
		sshpkg.CommandEntry("cat /nope"),
		sshpkg.ErrorEntry("No such file"),
		sshpkg.OutputEntry("5.15"),
	}
	assert.Equal(t, "web01\n5.15", JoinOutputs(entries))
}

func TestListSessions(t *testing.T) {
	f := newFixture(t)
	srv := linuxDevice(t)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Execute(context.Background(), request(srv, "linux", "hostname"))
		require.NoError(t, err)
	}

	recs, err := f.history.ListSessions("127.0.0.1", 2)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = f.history.ListSessions("10.9.9.9", 10)
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = f.history.GetSession("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
