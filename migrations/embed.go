// Package migrations 内嵌的数据库迁移脚本
package migrations

import "embed"

// FS 按 golang-migrate 命名规则存放的 SQL 文件
//
//go:embed *.sql
var FS embed.FS
