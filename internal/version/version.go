// Package version holds build identification, stamped at release time via
//
//	go build -ldflags "-X coinwatch/internal/version.Version=v1.2.3 \
//	    -X coinwatch/internal/version.Commit=$(git rev-parse --short HEAD) \
//	    -X coinwatch/internal/version.BuildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	// Version 语义化版本号, 开发构建为 dev。
	Version = "dev"
	// Commit 构建所用的 git 提交哈希。
	Commit = "unknown"
	// BuildDate 构建时间 (UTC)。
	BuildDate = "unknown"
)
