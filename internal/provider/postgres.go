package provider

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gbfs-sync/internal/logger"
)

// PGSource：feed_providers 表（见 migrate.EnsureSchema）
type PGSource struct {
	db *sql.DB
}

func NewPGSource(db *sql.DB) *PGSource { return &PGSource{db: db} }

func (s *PGSource) Load(ctx context.Context) ([]Config, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT system_id, codespace, operator_id, operator_name, enabled, exclude_feeds
		FROM feed_providers ORDER BY system_id`)
	if err != nil {
		return nil, fmt.Errorf("query feed_providers: %w", err)
	}
	defer rows.Close()
	var out []Config
	for rows.Next() {
		var c Config
		var excludes string
		if err := rows.Scan(&c.SystemID, &c.Codespace, &c.OperatorID, &c.OperatorName, &c.Enabled, &excludes); err != nil {
			return nil, fmt.Errorf("scan feed_providers: %w", err)
		}
		c.ExcludeFeeds = splitFeeds(excludes)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Upsert：按 system_id 写入或覆盖
func (s *PGSource) Upsert(ctx context.Context, c Config) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO feed_providers(system_id, codespace, operator_id, operator_name, enabled, exclude_feeds)
		VALUES($1, $2, $3, $4, $5, $6)
		ON CONFLICT (system_id) DO UPDATE SET codespace = EXCLUDED.codespace, operator_id = EXCLUDED.operator_id,
			operator_name = EXCLUDED.operator_name, enabled = EXCLUDED.enabled, exclude_feeds = EXCLUDED.exclude_feeds,
			updated_at = now()`,
		c.SystemID, c.Codespace, c.OperatorID, c.OperatorName, c.Enabled, strings.Join(c.ExcludeFeeds, ","))
	if err != nil {
		return fmt.Errorf("upsert provider %s: %w", c.SystemID, err)
	}
	logger.L().Info("provider_upsert", "system_id", c.SystemID)
	return nil
}

// Delete：删除配置行；已缓存实体由清理器在下次重载时移除
func (s *PGSource) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM feed_providers WHERE system_id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete provider %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func splitFeeds(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
