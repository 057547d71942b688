package simulate

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `password: lab
devices:
  sw1:
    port: 0
    family: switch
    single_exec: true
    outputs:
      show clock: "10:00"
  web01:
    port: 0
    family: linux
    host_key_type: ecdsa
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "simulate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, testYAML))
	require.NoError(t, err)

	assert.Equal(t, "lab", cfg.Password)
	require.Len(t, cfg.Devices, 2)
	assert.True(t, cfg.Devices["sw1"].SingleExec)
	assert.Equal(t, "10:00", cfg.Devices["sw1"].Outputs["show clock"])
	assert.Equal(t, "ecdsa", cfg.Devices["web01"].HostKeyType)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestProfileDefaults(t *testing.T) {
	sw := DeviceProfile{Family: "switch"}
	assert.Equal(t, ">", sw.promptSuffix())
	linux := DeviceProfile{Family: "Linux"}
	assert.Equal(t, "$ ", linux.promptSuffix())

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "show_vlan.txt"), []byte("1 default"), 0o644))
	p := DeviceProfile{OutputsDir: dir, Outputs: map[string]string{"show clock": "10:00"}}
	out, ok := p.output("show vlan")
	assert.True(t, ok)
	assert.Equal(t, "1 default", out)
	_, ok = p.output("show run")
	assert.False(t, ok)
}

func TestManagerReload(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, testYAML))
	require.NoError(t, err)

	m, err := Start(cfg)
	require.NoError(t, err)
	t.Cleanup(m.Stop)

	ports := m.Ports()
	require.Len(t, ports, 2)
	assert.NotZero(t, ports["sw1"])

	delete(cfg.Devices, "web01")
	require.NoError(t, m.Reload(cfg))
	ports = m.Ports()
	assert.Len(t, ports, 1)
	assert.Contains(t, ports, "sw1")
}

func TestServerStopClosesPendingConnections(t *testing.T) {
	srv, err := NewServer("sw1", "lab", DeviceProfile{Family: "switch"})
	require.NoError(t, err)
	require.NoError(t, srv.Start("127.0.0.1:0"))
	addr := fmt.Sprintf("127.0.0.1:%d", srv.Port())

	// 未完成握手的连接停留在服务端处理中，同时持续有新连接接入
	var clients []net.Conn
	for i := 0; i < 5; i++ {
		c, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		clients = append(clients, c)
	}
	dialed := make(chan net.Conn, 64)
	go func() {
		defer close(dialed)
		for i := 0; i < 50; i++ {
			c, err := net.Dial("tcp", addr)
			if err != nil {
				return
			}
			dialed <- c
		}
	}()

	stopped := make(chan struct{})
	go func() {
		srv.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	for c := range dialed {
		clients = append(clients, c)
	}

	// 停止后服务端不保留任何连接：已登记的被关闭，未登记的在 Accept 后立即关闭或被拒绝
	buf := make([]byte, 512)
	for _, c := range clients {
		_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
		for {
			_, err := c.Read(buf)
			if err != nil {
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					t.Fatalf("connection %s left open after Stop", c.LocalAddr())
				}
				break
			}
		}
		_ = c.Close()
	}

	_, err = net.DialTimeout("tcp", addr, time.Second)
	assert.Error(t, err)
}
