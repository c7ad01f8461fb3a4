package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/viper"
)

// Section 模块配置子树（options.<kind>.<id>）
// nil Section 表示配置节点不存在，所有读取方法对 nil 安全。
type Section struct {
	path string
	v    *viper.Viper
}

// NewSection 使用内存 map 构造配置子树
func NewSection(path string, settings map[string]any) *Section {
	v := viper.New()
	_ = v.MergeConfigMap(settings)
	return &Section{path: path, v: v}
}

func (s *Section) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func (s *Section) IsSet(key string) bool {
	return s != nil && s.v.IsSet(key)
}

func (s *Section) Get(key string) any {
	if s == nil {
		return nil
	}
	return s.v.Get(key)
}

func (s *Section) GetString(key string) string {
	if s == nil {
		return ""
	}
	return s.v.GetString(key)
}

func (s *Section) GetInt(key string) int {
	if s == nil {
		return 0
	}
	return s.v.GetInt(key)
}

func (s *Section) GetBool(key string) bool {
	if s == nil {
		return false
	}
	return s.v.GetBool(key)
}

func (s *Section) GetDuration(key string) time.Duration {
	if s == nil {
		return 0
	}
	return s.v.GetDuration(key)
}

// Keys 顶层 key 列表（排序）
func (s *Section) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0)
	for k := range s.v.AllSettings() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Decode 将子树解码到模块选项结构体，不做 validate 校验
func (s *Section) Decode(out any) error {
	if s == nil {
		return fmt.Errorf("decode section: section not present")
	}
	decoder, err := newDecoder(out)
	if err != nil {
		return fmt.Errorf("new decoder: %w", err)
	}
	if err := decoder.Decode(s.v.AllSettings()); err != nil {
		return fmt.Errorf("decode section %s: %w", s.path, err)
	}
	return nil
}
