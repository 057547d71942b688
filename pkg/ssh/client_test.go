package ssh

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/devsession/simulate"
)

const testPassword = "nova"

func startDevice(t *testing.T, name string, profile simulate.DeviceProfile) *simulate.Server {
	t.Helper()
	srv, err := simulate.NewServer(name, testPassword, profile)
	require.NoError(t, err)
	require.NoError(t, srv.Start("127.0.0.1:0"))
	t.Cleanup(srv.Stop)
	return srv
}

func connectTo(t *testing.T, srv *simulate.Server, cfg *Config, legacy bool) *Client {
	t.Helper()
	if cfg == nil {
		cfg = &Config{Timeout: 5 * time.Second}
	}
	c := NewClient(cfg)
	err := c.Connect(context.Background(), &ConnectionInfo{
		Host:     "127.0.0.1",
		Port:     srv.Port(),
		Username: "admin",
		Password: testPassword,
		Legacy:   legacy,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestConnect(t *testing.T) {
	srv := startDevice(t, "web01", simulate.DeviceProfile{Family: "linux"})
	c := connectTo(t, srv, nil, false)

	assert.True(t, c.IsConnected())
	assert.Equal(t, "127.0.0.1", c.Info().Host)
	assert.False(t, c.Expired())
	assert.NoError(t, c.Err())
}

func TestConnectLegacyProfile(t *testing.T) {
	srv := startDevice(t, "core1", simulate.DeviceProfile{Family: "router", HostKeyType: "ecdsa"})
	c := connectTo(t, srv, nil, true)

	assert.True(t, c.IsConnected())
}

func TestConnectAuthFailure(t *testing.T) {
	srv := startDevice(t, "web01", simulate.DeviceProfile{Family: "linux"})
	c := NewClient(&Config{Timeout: 5 * time.Second})

	err := c.Connect(context.Background(), &ConnectionInfo{
		Host:     "127.0.0.1",
		Port:     srv.Port(),
		Username: "admin",
		Password: "wrong",
	})
	require.Error(t, err)

	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "auth", connErr.Stage)
	assert.False(t, c.IsConnected())
}

func TestConnectDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	c := NewClient(&Config{Timeout: 2 * time.Second})
	err = c.Connect(context.Background(), &ConnectionInfo{Host: "127.0.0.1", Port: port, Username: "admin"})

	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "dial", connErr.Stage)
}

func TestCloseIdempotent(t *testing.T) {
	srv := startDevice(t, "web01", simulate.DeviceProfile{Family: "linux"})
	c := connectTo(t, srv, nil, false)

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.False(t, c.IsConnected())

	_, err := c.ExecuteCommand("hostname")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestAddressDefaultsToPort22(t *testing.T) {
	info := &ConnectionInfo{Host: "10.0.0.1"}
	assert.Equal(t, "10.0.0.1:22", info.Address())

	info.Port = 2222
	assert.Equal(t, "10.0.0.1:2222", info.Address())
}
