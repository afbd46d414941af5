package migrations

import "embed"

// Files 暴露转账流水使用的 SQL 迁移文件。
//
//go:embed *.sql
var Files embed.FS
