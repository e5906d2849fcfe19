package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xn030523/Warp-Plus/internal/claim"
	"github.com/xn030523/Warp-Plus/internal/config"
	"github.com/xn030523/Warp-Plus/internal/gateway"
	"github.com/xn030523/Warp-Plus/internal/logger"
	"github.com/xn030523/Warp-Plus/internal/machineid"
	"github.com/xn030523/Warp-Plus/internal/mailbox"
	"github.com/xn030523/Warp-Plus/internal/recharge"
	"github.com/xn030523/Warp-Plus/internal/session"
	"github.com/xn030523/Warp-Plus/internal/storage/sqlite"
	"github.com/xn030523/Warp-Plus/internal/usage"
)

// App 聚合一次命令执行所需的全部服务
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Backend *gateway.Client
	Store   *session.Store
	DB      *sqlite.Store

	Claims    *claim.Workflow
	Recharges *recharge.Workflow
	Mailbox   *mailbox.Service
	Usage     *usage.Service
	Machine   *machineid.Manager
}

// newApp 装配全部依赖并恢复本地会话
func newApp(development bool) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	logCfg := logger.Config{
		Level:       cfg.Log.Level,
		Development: development || cfg.Log.Development,
		LogFile:     cfg.Log.LogFile,
		MaxSize:     20,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	}
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	sessionPath, err := cfg.SessionFilePath()
	if err != nil {
		return nil, err
	}
	dbPath, err := cfg.DBPath()
	if err != nil {
		return nil, err
	}

	db, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开本地数据库失败: %w", err)
	}

	backend := gateway.NewClient(cfg.API.BaseURL, cfg.API.Timeout, log)
	mailClient := gateway.NewMailClient(cfg.Mail.BaseURL, cfg.API.Timeout, cfg.Mail.MaxRPS, log)
	warpClient := gateway.NewWarpClient(cfg.Usage.TokenURL, cfg.Usage.GraphQLURL, cfg.Usage.ClientVersion, cfg.API.Timeout, log)

	store := session.NewStore(backend, sessionPath, log)
	store.Restore(context.Background())

	creds := usage.ChainSource{
		&usage.FileSource{Path: usage.DefaultWarpUserFile()},
		&usage.MirrorSource{Mirror: db},
	}

	app := &App{
		Config:    cfg,
		Logger:    log,
		Backend:   backend,
		Store:     store,
		DB:        db,
		Claims:    claim.NewWorkflow(backend, store, db, cfg.Claim.MinBalance, log),
		Recharges: recharge.NewWorkflow(backend, store, log),
		Mailbox:   mailbox.NewService(mailClient, cfg.Mail.PollInterval, log),
		Usage:     usage.NewService(warpClient, creds, db, cfg.Usage.RefreshInterval, log),
		Machine:   machineid.NewManager(),
	}
	return app, nil
}

// Close 释放资源
func (a *App) Close() {
	a.Mailbox.Stop()
	a.Usage.Stop()
	if a.DB != nil {
		_ = a.DB.Close()
	}
	_ = a.Logger.Sync()
}
