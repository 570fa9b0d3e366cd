// Package handler HTTP 处理器，按业务拆分在各子包中
//
// 保留本文件以便 `swag init --dir ./internal/handler` 把该目录识别为 Go 包
package handler
