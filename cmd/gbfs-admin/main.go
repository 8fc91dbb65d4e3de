// 管理命令入口：连接与服务进程相同的存储，执行清理、孤儿索引与计数等运维操作
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"gbfs-sync/internal/app"
	"gbfs-sync/internal/config"
	"gbfs-sync/internal/leader"
	"gbfs-sync/internal/logger"
	"gbfs-sync/internal/provider"
)

// session：一次命令执行所需的依赖，在 PersistentPreRunE 中打开
type session struct {
	cfg       config.Config
	stores    *app.Stores
	providers *app.Providers
	registry  *provider.Dynamic
	engine    *app.Engine
}

var (
	sess       *session
	jsonOutput bool
	force      bool
)

var rootCmd = &cobra.Command{
	Use:           "gbfs-admin",
	Short:         "Maintenance commands for the GBFS entity cache and spatial index",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := open(cmd.Context())
		if err != nil {
			return err
		}
		sess = s
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if sess != nil {
			sess.stores.Close()
			sess.providers.Close()
		}
	},
}

func open(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.StoreBackend != config.BackendRedis {
		return nil, fmt.Errorf("gbfs-admin requires STORE_BACKEND=redis")
	}
	providers, err := app.OpenProviders(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cs, err := providers.Source.Load(ctx)
	if err != nil {
		providers.Close()
		return nil, err
	}
	stores, err := app.OpenStores(ctx, cfg.StoreBackend)
	if err != nil {
		providers.Close()
		return nil, err
	}
	registry := provider.NewDynamic(cs)
	// 管理命令从不应用增量
	engine := app.NewEngine(stores, registry, leader.Static(false), cfg)
	return &session{cfg: cfg, stores: stores, providers: providers, registry: registry, engine: engine}, nil
}

// errLeaseHeld：服务进程持有写入租约时，写操作应通过其 /admin 接口执行
var errLeaseHeld = errors.New("leader lease is held by a running instance; use its /api/admin endpoints")

// claimWriter：写操作前取得写入许可
// LEADER_MODE=redis 时争抢租约，返回的函数释放租约；static 模式无法感知服务进程，需显式 --force
func claimWriter(ctx context.Context, s *session) (func(), error) {
	if s.cfg.LeaderMode != config.LeaderRedis {
		if !force {
			return nil, fmt.Errorf("LEADER_MODE=%s cannot detect a running writer; stop it or pass --force", s.cfg.LeaderMode)
		}
		return func() {}, nil
	}
	lease := leader.NewRedisLease(s.stores.RC, s.cfg.LeaderKey, s.cfg.LeaderLeaseTTL)
	if !lease.TryAcquire(ctx) {
		return nil, errLeaseHeld
	}
	return lease.Release, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().BoolVar(&force, "force", false, "write without the leader lease (static leader mode only)")
	rootCmd.AddCommand(cleanupCmd, countsCmd, orphansCmd, providerCmd)
}

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	logger.Setup()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
