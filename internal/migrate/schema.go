package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"gbfs-sync/internal/logger"
)

// EnsureSchema：首次运行时创建提供方配置表
// 约束：使用 IF NOT EXISTS，可重复执行；exclude_feeds 为逗号分隔的文件类型
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS feed_providers (
			system_id TEXT PRIMARY KEY,
			codespace TEXT NOT NULL,
			operator_id TEXT NOT NULL DEFAULT '',
			operator_name TEXT NOT NULL DEFAULT '',
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			exclude_feeds TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feed_providers_codespace ON feed_providers(codespace)`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
