package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sshcollectorpro/devsession/internal/config"
	"github.com/sshcollectorpro/devsession/internal/metrics"
	"github.com/sshcollectorpro/devsession/internal/model"
	"github.com/sshcollectorpro/devsession/internal/parser"
	"github.com/sshcollectorpro/devsession/pkg/device"
	"github.com/sshcollectorpro/devsession/pkg/logger"
	sshpkg "github.com/sshcollectorpro/devsession/pkg/ssh"
)

// Cisco 风格设备的配置抓取命令：先关闭分页再导出配置
var ciscoFetchCommands = []string{"terminal length 0", "show running-config"}

// Options 会话执行参数，由配置显式传入
type Options struct {
	DefaultPort    int
	SSH            sshpkg.Config
	LegacyFamilies []string
}

// OptionsFromConfig 从应用配置提取会话参数
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DefaultPort:    cfg.SSH.Port,
		SSH:            *cfg.SSH.ClientConfig(),
		LegacyFamilies: append([]string(nil), cfg.SSH.LegacyFamilies...),
	}
}

// Result 命令批次结果
type Result struct {
	SessionID   string          `json:"session_id"`
	Strategy    sshpkg.Strategy `json:"strategy"`
	Entries     []sshpkg.Entry  `json:"output"`
	DeadlineHit bool            `json:"deadline_hit"`
	// Connected 连接与认证是否成功
	Connected bool `json:"-"`
}

// ConfigResult 配置抓取并解析的结果
type ConfigResult struct {
	SessionID  string              `json:"session_id"`
	Entries    []sshpkg.Entry      `json:"output"`
	Device     *parser.DeviceModel `json:"device"`
	ParseError string              `json:"parse_error,omitempty"`
}

// SessionService 每个请求独立建立连接、执行、关闭，不复用连接
type SessionService struct {
	mu       sync.RWMutex
	opts     Options
	history  *HistoryStore
	archiver Archiver
}

// NewSessionService 创建会话服务；history/archiver 可为 nil
func NewSessionService(opts Options, history *HistoryStore, archiver Archiver) *SessionService {
	return &SessionService{opts: opts, history: history, archiver: archiver}
}

// UpdateOptions 配置热更新，仅影响之后的请求
func (s *SessionService) UpdateOptions(opts Options) {
	s.mu.Lock()
	s.opts = opts
	s.mu.Unlock()
}

// SetArchiver 替换归档后端
func (s *SessionService) SetArchiver(a Archiver) {
	s.mu.Lock()
	s.archiver = a
	s.mu.Unlock()
}

func (s *SessionService) snapshot() (Options, Archiver) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts, s.archiver
}

// Execute 执行请求中的命令批次
// 连接失败以单个错误条目返回；仅请求参数非法时返回 error
func (s *SessionService) Execute(ctx context.Context, req Request) (*Result, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.run(ctx, model.SessionKindExecute, req, req.Commands, req.ElevationSecret), nil
}

// Test 仅建立并关闭连接，返回连接成功提示
func (s *SessionService) Test(ctx context.Context, req Request) (*Result, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.run(ctx, model.SessionKindTest, req, nil, ""), nil
}

// FetchConfig 按设备族执行配置抓取命令，拼接输出后解析为设备模型
func (s *SessionService) FetchConfig(ctx context.Context, req Request) (*ConfigResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	family := device.ParseFamily(req.DeviceFamily)
	commands, err := FetchCommands(family)
	if err != nil {
		return nil, err
	}

	res := s.run(ctx, model.SessionKindConfig, req, commands, req.ElevationSecret)
	out := &ConfigResult{SessionID: res.SessionID, Entries: res.Entries}
	if !res.Connected {
		return out, nil
	}

	dm, perr := parser.Parse(family, JoinOutputs(res.Entries))
	if perr != nil {
		out.ParseError = perr.Error()
		logger.Warn("Config parse failed", "session_id", res.SessionID, "host", req.Hostname, "family", family, "error", perr)
	}
	out.Device = dm
	s.saveSnapshot(res.SessionID, req.Hostname, family, dm, out.ParseError)
	return out, nil
}

// FetchCommands 设备族对应的配置抓取命令
func FetchCommands(family device.Family) ([]string, error) {
	switch {
	case family.IsCisco():
		return append([]string(nil), ciscoFetchCommands...), nil
	case family == device.FamilyLinux:
		return append([]string(nil), parser.LinuxFetchCommands...), nil
	default:
		return nil, fmt.Errorf("%w: config fetch not supported for device family %q", ErrInvalidRequest, family)
	}
}

// JoinOutputs 按顺序以换行拼接全部输出条目
func JoinOutputs(entries []sshpkg.Entry) string {
	var parts []string
	for _, e := range entries {
		if e.Type == sshpkg.EntryOutput {
			parts = append(parts, e.Content)
		}
	}
	return strings.Join(parts, "\n")
}

func (s *SessionService) run(ctx context.Context, kind string, req Request, commands []string, elevation string) *Result {
	opts, archiver := s.snapshot()
	family := device.ParseFamily(req.DeviceFamily)
	strategy := sshpkg.SelectStrategy(family, req.ForceLegacyShellMode)

	port := req.Port
	if port == 0 {
		port = opts.DefaultPort
	}
	info := &sshpkg.ConnectionInfo{
		Host:     req.Hostname,
		Port:     port,
		Username: req.Username,
		Password: req.Password,
		Legacy:   family.In(opts.LegacyFamilies),
	}

	start := time.Now()
	rec := &model.SessionRecord{
		ID:           uuid.NewString(),
		Kind:         kind,
		Host:         info.Host,
		Port:         port,
		Username:     info.Username,
		Family:       family.String(),
		Strategy:     string(strategy),
		Legacy:       info.Legacy,
		Status:       model.SessionStatusPending,
		CommandCount: len(commands),
		StartTime:    start,
	}
	log := logger.WithFields(map[string]interface{}{
		"session_id": rec.ID,
		"host":       info.Address(),
		"family":     family,
		"strategy":   strategy,
	})

	res := &Result{SessionID: rec.ID, Strategy: strategy}
	clientCfg := opts.SSH
	client := sshpkg.NewClient(&clientCfg)
	if err := client.Connect(ctx, info); err != nil {
		res.Entries = []sshpkg.Entry{sshpkg.ErrorEntry("SSH Connection Error: " + err.Error())}
		rec.Status = model.SessionStatusFailed
		rec.ErrorMsg = err.Error()
		var connErr *sshpkg.ConnectionError
		stage := "unknown"
		if errors.As(err, &connErr) {
			stage = connErr.Stage
		}
		metrics.ConnectFailures.WithLabelValues(stage).Inc()
		log.WithField("stage", stage).Warnf("SSH connection failed: %v", err)
		s.finish(ctx, rec, res, "", archiver)
		return res
	}
	defer client.Close()
	res.Connected = true
	log.WithField("legacy", info.Legacy).Info("SSH connected")

	if elevation != "" && strategy == sshpkg.StrategyShellReplay {
		log.Debug("Elevation line queued: " + sshpkg.ElevationKeyword + " ***")
	}
	run := client.Run(commands, sshpkg.RunOptions{Strategy: strategy, ElevationSecret: elevation})
	res.Strategy = run.Strategy
	res.Entries = run.Entries
	res.DeadlineHit = run.DeadlineHit

	rec.Strategy = string(run.Strategy)
	rec.DeadlineHit = run.DeadlineHit
	rec.Status = model.SessionStatusSuccess
	if run.DeadlineHit {
		rec.Status = model.SessionStatusDeadline
		metrics.DeadlineTeardowns.Inc()
		log.Warn("Batch deadline reached; connection closed with partial transcript")
	}
	logger.DebugTranscript("session "+rec.ID, run.Transcript, 5)
	s.finish(ctx, rec, res, run.Transcript, archiver)
	return res
}

// finish 归档、记录指标并保存历史；失败仅记录日志
func (s *SessionService) finish(ctx context.Context, rec *model.SessionRecord, res *Result, transcript string, archiver Archiver) {
	rec.EndTime = time.Now()
	rec.Duration = rec.EndTime.Sub(rec.StartTime).Milliseconds()

	metrics.SessionsTotal.WithLabelValues(rec.Kind, rec.Strategy, rec.Status).Inc()
	metrics.BatchDuration.WithLabelValues(rec.Strategy).Observe(rec.EndTime.Sub(rec.StartTime).Seconds())
	for _, e := range res.Entries {
		metrics.EntriesTotal.WithLabelValues(string(e.Type)).Inc()
	}

	if archiver != nil && strings.TrimSpace(transcript) != "" {
		obj, err := archiver.Archive(ctx, ArchiveMeta{SessionID: rec.ID, Host: rec.Host, Time: rec.StartTime}, transcript)
		if err != nil {
			logger.Warn("Transcript archive failed", "session_id", rec.ID, "error", err)
		} else {
			rec.ArchiveKey = obj.URI
		}
	}

	logger.Info("SSH session finished",
		"session_id", rec.ID,
		"kind", rec.Kind,
		"status", rec.Status,
		"entries", len(res.Entries),
		"duration_ms", rec.Duration,
	)

	if s.history == nil {
		return
	}
	if err := s.history.SaveSession(rec, res.Entries); err != nil {
		logger.Error("Save session history failed", "session_id", rec.ID, "error", err)
	}
}

func (s *SessionService) saveSnapshot(sessionID, host string, family device.Family, dm *parser.DeviceModel, parseErr string) {
	if s.history == nil {
		return
	}
	snap := &model.DeviceSnapshot{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Host:       host,
		Family:     family.String(),
		ParseError: parseErr,
	}
	if dm != nil {
		snap.Hostname = dm.Hostname
		snap.Version = dm.Version
		if b, err := json.Marshal(dm); err == nil {
			snap.Model = string(b)
		}
	}
	if err := s.history.SaveSnapshot(snap); err != nil {
		logger.Error("Save device snapshot failed", "session_id", sessionID, "error", err)
	}
}

// History 历史存储，未启用时为 nil
func (s *SessionService) History() *HistoryStore {
	return s.history
}
