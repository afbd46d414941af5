package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"OpenMCP-EVM/deploy/migrations"
)

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
        version VARCHAR(32) NOT NULL PRIMARY KEY,
        applied_at BIGINT NOT NULL
)`

// migration 对应一个 NNNN_xxx.sql 文件。
type migration struct {
	version    string
	seq        int
	file       string
	statements []string
}

// migrator 把转账库的迁移按版本号顺序应用到数据库。
type migrator struct {
	source fs.FS
	now    func() time.Time
}

func newMigrator(source fs.FS) *migrator {
	return &migrator{source: source, now: time.Now}
}

// runMigrations 应用尚未执行的内嵌迁移。
func runMigrations(ctx context.Context, db *sql.DB) error {
	_, err := newMigrator(migrations.Files).apply(ctx, db)
	return err
}

// apply 返回本次新执行的版本号。每个版本在独立事务中执行，失败即回滚并停止。
func (m *migrator) apply(ctx context.Context, db *sql.DB) ([]string, error) {
	pending, err := m.load()
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("创建 schema_migrations 表失败: %w", err)
	}
	done, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, mg := range pending {
		if done[mg.version] {
			continue
		}
		if err := m.exec(ctx, db, mg); err != nil {
			return applied, err
		}
		applied = append(applied, mg.version)
	}
	return applied, nil
}

func (m *migrator) exec(ctx context.Context, db *sql.DB, mg migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启迁移事务失败: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range mg.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("迁移 %s 第 %d 条语句失败: %w", mg.file, i+1, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, mg.version, m.now().Unix()); err != nil {
		return fmt.Errorf("记录迁移版本 %s 失败: %w", mg.version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交迁移 %s 失败: %w", mg.file, err)
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("查询 schema_migrations 失败: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("解析 schema_migrations 失败: %w", err)
		}
		done[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历 schema_migrations 失败: %w", err)
	}
	return done, nil
}

// load 读取并校验迁移文件：版本号必须是数字前缀且不可重复。
func (m *migrator) load() ([]migration, error) {
	names, err := fs.Glob(m.source, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("读取迁移目录失败: %w", err)
	}

	seen := make(map[int]string, len(names))
	out := make([]migration, 0, len(names))
	for _, name := range names {
		version, seq, err := migrationVersion(name)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[seq]; dup {
			return nil, fmt.Errorf("迁移版本 %s 重复: %s 与 %s", version, prev, name)
		}
		seen[seq] = name

		raw, err := fs.ReadFile(m.source, name)
		if err != nil {
			return nil, fmt.Errorf("读取迁移文件 %s 失败: %w", name, err)
		}
		stmts := splitSQLStatements(string(raw))
		if len(stmts) == 0 {
			continue
		}
		out = append(out, migration{version: version, seq: seq, file: name, statements: stmts})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out, nil
}

// migrationVersion 从 0002_add_index.sql 中取出 "0002" 与 2。
func migrationVersion(name string) (string, int, error) {
	base := strings.TrimSuffix(path.Base(name), ".sql")
	version, _, _ := strings.Cut(base, "_")
	seq, err := strconv.Atoi(version)
	if err != nil || seq <= 0 {
		return "", 0, fmt.Errorf("迁移文件 %s 缺少数字版本前缀", name)
	}
	return version, seq, nil
}

// splitSQLStatements 去掉 "--" 注释行后按分号切分。
func splitSQLStatements(content string) []string {
	var body strings.Builder
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}

	var statements []string
	for _, stmt := range strings.Split(body.String(), ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}
