package config

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Store 运行时配置仓库
// 每次 Load 都新建 viper 实例：上一轮 reload 回写的默认值不会覆盖文件里的新值。
// viper 本身非并发安全，所有访问经由 mu 串行化。
type Store struct {
	mu    sync.RWMutex
	path  string
	flags *pflag.FlagSet
	seed  map[string]any
	v     *viper.Viper
}

// NewStore 创建基于配置文件的 Store，flags 可为 nil
func NewStore(path string, flags *pflag.FlagSet) *Store {
	return &Store{path: path, flags: flags, v: viper.New()}
}

// NewStoreFromMap 创建基于内存 map 的 Store（嵌入方/测试使用），Load 会恢复到该 map
func NewStoreFromMap(settings map[string]any) *Store {
	s := &Store{seed: settings, v: viper.New()}
	_ = s.Load()
	return s
}

// Path 配置文件路径（内存 Store 为空）
func (s *Store) Path() string { return s.path }

// Load 重新从持久化存储读取配置
func (s *Store) Load() error {
	v := viper.New()
	if s.flags != nil {
		if err := v.BindPFlags(s.flags); err != nil {
			return fmt.Errorf("bind flags: %w", err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if s.seed != nil {
		if err := v.MergeConfigMap(s.seed); err != nil {
			return fmt.Errorf("merge settings: %w", err)
		}
	}
	if s.path != "" {
		v.SetConfigFile(s.path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", s.path, err)
		}
	}

	s.mu.Lock()
	s.v = v
	s.mu.Unlock()
	return nil
}

// Decode 解码反序列化到结构体（支持 time.Duration）
func (s *Store) Decode(out any) error {
	decoder, err := newDecoder(out)
	if err != nil {
		return fmt.Errorf("new decoder: %w", err)
	}
	if err := decoder.Decode(s.Settings()); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Settings 当前生效配置（含回写的默认值）
func (s *Store) Settings() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.AllSettings()
}

// Set 写入内存配置（不落盘）
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Set(key, value)
}

// Enabled 读取形如 {id: bool} 的启用表，返回排序后的启用 id 与值非布尔的 id
func (s *Store) Enabled(key string) (ids []string, invalid []string) {
	s.mu.RLock()
	raw := s.v.Get(key)
	s.mu.RUnlock()
	if raw == nil {
		return nil, nil
	}
	table, err := cast.ToStringMapE(raw)
	if err != nil {
		return nil, []string{key}
	}
	for id, val := range table {
		on, err := cast.ToBoolE(val)
		if err != nil {
			invalid = append(invalid, id)
			continue
		}
		if on {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	sort.Strings(invalid)
	return ids, invalid
}

// Section 读取配置子树，节点不存在或不是 map 时返回 nil
func (s *Store) Section(path string) *Section {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub := s.v.Sub(path)
	if sub == nil {
		return nil
	}
	return &Section{path: path, v: sub}
}

// IntOrDefault 读取整数配置；缺失、非整数或 accept 拒绝时回写并返回默认值
func (s *Store) IntOrDefault(path string, def int, accept func(int) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if raw := s.v.Get(path); raw != nil {
		if n, err := cast.ToIntE(raw); err == nil && (accept == nil || accept(n)) {
			return n
		}
	}
	s.v.Set(path, def)
	return def
}

// StringOrDefault 读取字符串配置；缺失或 accept 拒绝时回写并返回默认值
func (s *Store) StringOrDefault(path string, def string, accept func(string) bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if raw := s.v.Get(path); raw != nil {
		if str, err := cast.ToStringE(raw); err == nil && (accept == nil || accept(str)) {
			return str
		}
	}
	s.v.Set(path, def)
	return def
}
