package registers

import (
	"github.com/metric-relay/pkg/config"
)

// Settings Manager 读取的运行时配置（config.Store 实现）
type Settings interface {
	// Enabled 读取 {id: bool} 启用表，返回启用的 id 与值非布尔的 id
	Enabled(key string) (ids []string, invalid []string)
	// Section 配置子树，不存在时为 nil
	Section(path string) *config.Section
	// IntOrDefault 非法或缺失时回写默认值
	IntOrDefault(path string, def int, accept func(int) bool) int
	// StringOrDefault 非法或缺失时回写默认值
	StringOrDefault(path string, def string, accept func(string) bool) string
}

// Loader 重新读取持久化配置
type Loader interface {
	Load() error
}

var _ Settings = (*config.Store)(nil)
var _ Loader = (*config.Store)(nil)
