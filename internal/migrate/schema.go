package migrate

import (
	"context"
	"database/sql"
	"pmtiles-api/internal/logger"
)

// 背景：WhosOnFirst 离线库默认仅有主键索引，按国家统计与前缀检索会全表扫描
// 约束：使用 IF NOT EXISTS，重复执行无副作用；只建索引，不改动 spr 表结构
var indexes = []struct{ name, ddl string }{
	{"idx_spr_country_placetype_name", `CREATE INDEX IF NOT EXISTS idx_spr_country_placetype_name ON spr(country, placetype, name)`},
	{"idx_spr_placetype_country_id", `CREATE INDEX IF NOT EXISTS idx_spr_placetype_country_id ON spr(placetype, country, id)`},
}

// EnsureIndexes：需使用可写连接；sqlite 与 postgres 语法一致
func EnsureIndexes(ctx context.Context, db *sql.DB) error {
	for i, ix := range indexes {
		logger.L().Debug("schema_exec", "idx", i, "name", ix.name)
		if _, err := db.ExecContext(ctx, ix.ddl); err != nil {
			return err
		}
	}
	logger.L().Info("schema_done", "indexes", len(indexes))
	return nil
}
