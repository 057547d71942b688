package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sshcollectorpro/devsession/api/router"
	"github.com/sshcollectorpro/devsession/internal/config"
	"github.com/sshcollectorpro/devsession/internal/database"
	"github.com/sshcollectorpro/devsession/internal/service"
	"github.com/sshcollectorpro/devsession/pkg/logger"
	"github.com/sshcollectorpro/devsession/simulate"
)

// simulator 模拟设备的启停状态，配置与 simulate.yaml 两处热更新共用
type simulator struct {
	mu  sync.Mutex
	mgr *simulate.Manager
}

func (s *simulator) start(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mgr != nil {
		return
	}
	sc, err := simulate.LoadConfig(path)
	if err != nil {
		logger.Warn("Simulate: failed to load config", "path", path, "error", err)
		return
	}
	mgr, err := simulate.Start(sc)
	if err != nil {
		logger.Warn("Simulate: failed to start", "error", err)
		return
	}
	s.mgr = mgr
	logger.Info("Simulate: started", "ports", fmt.Sprint(mgr.Ports()))
}

func (s *simulator) reload(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mgr == nil {
		return
	}
	sc, err := simulate.LoadConfig(path)
	if err != nil {
		logger.Warn("Simulate: reload failed", "error", err)
		return
	}
	if err := s.mgr.Reload(sc); err != nil {
		logger.Warn("Simulate: hot reload failed", "error", err)
		return
	}
	logger.Info("Simulate: hot reload success", "ports", fmt.Sprint(s.mgr.Ports()))
}

func (s *simulator) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mgr != nil {
		s.mgr.Stop()
		s.mgr = nil
		logger.Info("Simulate: stopped")
	}
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Info("Starting Device Session Server", "version", "1.0.0")

	if err := database.InitSQLite(cfg.Database.SQLite); err != nil {
		logger.Fatal("Failed to initialize database", "error", err)
	}
	defer database.Close()

	sessionService := service.NewSessionService(
		service.OptionsFromConfig(cfg),
		service.NewHistoryStore(database.GetDB()),
		service.NewArchiver(cfg.Storage),
	)
	logger.Info("Session service ready",
		"batch_deadline", cfg.SSH.BatchDeadline,
		"legacy_families", cfg.SSH.LegacyFamilies,
		"storage_backend", cfg.Storage.Backend,
	)

	sim := &simulator{}
	if cfg.Server.SimulateEnable {
		sim.start(cfg.Server.SimulateConfig)
	}
	defer sim.stop()

	r := router.SetupRouter(sessionService, cfg.Server.Mode)
	server := &http.Server{
		Addr:           cfg.GetServerAddr(),
		Handler:        r,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	go func() {
		logger.Info("Server starting", "addr", server.Addr, "mode", cfg.Server.Mode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// 模拟设备配置热更新；未启动模拟时 reload 不生效
	if simPath := cfg.Server.SimulateConfig; simPath != "" {
		go watchFile(simPath, func() { sim.reload(simPath) })
	}

	// 配置文件热更新：日志、会话参数、归档后端与模拟开关
	go watchFile(*configPath, func() {
		prev := config.Get()
		newCfg, err := config.Load(*configPath)
		if err != nil {
			logger.Warn("Config reload failed", "error", err)
			return
		}
		if err := logger.Init(newCfg.LoggerConfig()); err != nil {
			logger.Warn("Logger reload failed", "error", err)
		}
		sessionService.UpdateOptions(service.OptionsFromConfig(newCfg))
		if newCfg.Storage != prev.Storage {
			sessionService.SetArchiver(service.NewArchiver(newCfg.Storage))
		}
		if newCfg.Server.SimulateEnable {
			sim.start(newCfg.Server.SimulateConfig)
		} else {
			sim.stop()
		}
		logger.Info("Config reloaded")
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	} else {
		logger.Info("Server shutdown complete")
	}
}

// watchFile 监听文件变化，去抖后回调
func watchFile(path string, onChange func()) {
	if _, err := os.Stat(path); err != nil {
		logger.Warn("Watch skipped, file not found", "path", path, "error", err)
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("Watch init failed", "path", path, "error", err)
		return
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		logger.Warn("Watch add failed", "path", path, "error", err)
		return
	}

	var debounce *time.Timer
	const debounceInterval = 300 * time.Millisecond
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceInterval, onChange)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Watch error", "path", path, "error", err)
		}
	}
}
