package ssh

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sshcollectorpro/devsession/pkg/device"
)

func TestSelectStrategy(t *testing.T) {
	tests := []struct {
		family     string
		forceShell bool
		want       Strategy
	}{
		{"switch", false, StrategyShellReplay},
		{"cisco_router", false, StrategyShellReplay},
		{"firewall", false, StrategyShellReplay},
		{"linux", false, StrategyDirectExec},
		{"windows", false, StrategyDirectExec},
		{"", false, StrategyDirectExec},
		{"linux", true, StrategyShellReplay},
	}
	for _, tt := range tests {
		got := SelectStrategy(device.ParseFamily(tt.family), tt.forceShell)
		assert.Equal(t, tt.want, got, "family=%q force=%v", tt.family, tt.forceShell)
	}
}

func TestRunDirectExecTranscript(t *testing.T) {
	srv := startDevice(t, "web01", linuxProfile())
	c := connectTo(t, srv, nil, false)

	res := c.Run([]string{"hostname", "reboot"}, RunOptions{Strategy: StrategyDirectExec})

	assert.Equal(t, StrategyDirectExec, res.Strategy)
	assert.False(t, res.DeadlineHit)
	assert.Len(t, res.Entries, 4)
	assert.Contains(t, res.Transcript, "$ hostname\nweb01\n")
	assert.Contains(t, res.Transcript, `! Error executing "reboot"`)
}

func TestRunShellReplay(t *testing.T) {
	srv := startDevice(t, "sw1", switchProfile())
	c := connectTo(t, srv, nil, false)

	res := c.Run([]string{"show version"}, RunOptions{Strategy: StrategyShellReplay, ElevationSecret: "s3cret"})

	assert.Equal(t, StrategyShellReplay, res.Strategy)
	assert.Equal(t, []pair{
		{EntryCommand, "enable ******"},
		{EntryCommand, "show version"},
		{EntryOutput, "Cisco IOS Software, Version 15.2(7)E"},
	}, pairs(res.Entries))
}

func TestRunDefaultsToDirectExec(t *testing.T) {
	srv := startDevice(t, "web01", linuxProfile())
	c := connectTo(t, srv, nil, false)

	res := c.Run([]string{"hostname"}, RunOptions{ElevationSecret: "ignored"})

	assert.Equal(t, StrategyDirectExec, res.Strategy)
	assert.Equal(t, []pair{
		{EntryCommand, "hostname"},
		{EntryOutput, "web01"},
	}, pairs(res.Entries))
}
