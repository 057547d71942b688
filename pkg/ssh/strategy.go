package ssh

import "github.com/sshcollectorpro/devsession/pkg/device"

// Strategy 执行策略
type Strategy string

const (
	StrategyDirectExec  Strategy = "direct_exec"
	StrategyShellReplay Strategy = "shell_replay"
)

// SelectStrategy 按设备族选择执行策略
// 交换机/路由器/防火墙在一次独立执行后会断开连接，必须使用 Shell Replay；
// 其余设备默认 Direct Exec，forceShell 仅在调用方显式要求时生效
func SelectStrategy(family device.Family, forceShell bool) Strategy {
	if forceShell || family.IsCisco() {
		return StrategyShellReplay
	}
	return StrategyDirectExec
}

// RunOptions 批次执行选项
type RunOptions struct {
	Strategy        Strategy
	ElevationSecret string
}

// RunResult 批次执行结果
type RunResult struct {
	Strategy   Strategy
	Entries    []Entry
	Transcript string
	// DeadlineHit 截止时间触发导致连接被强制关闭
	DeadlineHit bool
}

// Run 按策略执行命令批次；提权密码仅在 Shell Replay 中使用
func (c *Client) Run(commands []string, opts RunOptions) *RunResult {
	res := &RunResult{Strategy: opts.Strategy}
	switch opts.Strategy {
	case StrategyShellReplay:
		sr := c.ShellReplay(commands, opts.ElevationSecret)
		res.Entries = sr.Entries
		res.Transcript = sr.Transcript
	default:
		res.Strategy = StrategyDirectExec
		res.Entries = c.DirectExec(commands)
		res.Transcript = joinOutputs(res.Entries)
	}
	res.DeadlineHit = c.Expired()
	return res
}

func joinOutputs(entries []Entry) string {
	var b []byte
	for _, e := range entries {
		switch e.Type {
		case EntryCommand:
			b = append(b, "$ "...)
		case EntryError:
			b = append(b, "! "...)
		}
		b = append(b, e.Content...)
		b = append(b, '\n')
	}
	return string(b)
}
