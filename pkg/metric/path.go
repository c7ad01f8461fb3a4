package metric

import (
	"sort"
	"strings"
)

// Path 指标路径：点分层级 key + 无序标签集合
// 例如 key 为 server.entity、标签 {"world":"world_nether"} 的路径，提交到 graphite 时为：
//
//	server.entity;world=world_nether
//
// Path 构造后不可变，标签在构造时复制。
type Path struct {
	key  string
	tags map[string]string
}

// NewPath 创建指标路径，key 为空视为编程错误，直接 panic
func NewPath(key string, tags map[string]string) Path {
	if key == "" {
		panic("metric: path key must not be empty")
	}
	p := Path{key: key}
	if len(tags) > 0 {
		p.tags = make(map[string]string, len(tags))
		for k, v := range tags {
			p.tags[k] = v
		}
	}
	return p
}

// Key 返回不带根命名空间的 key
func (p Path) Key() string { return p.key }

// Tags 返回标签副本（可能为 nil）
func (p Path) Tags() map[string]string {
	if len(p.tags) == 0 {
		return nil
	}
	copied := make(map[string]string, len(p.tags))
	for k, v := range p.tags {
		copied[k] = v
	}
	return copied
}

// Tag 读取单个标签
func (p Path) Tag(name string) (string, bool) {
	v, ok := p.tags[name]
	return v, ok
}

// TagNames 返回排序后的标签名
func (p Path) TagNames() []string {
	names := make([]string, 0, len(p.tags))
	for k := range p.tags {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Graphite 渲染为 graphite 路径：无标签时为 key，否则为 key;k=v;k=v
// 标签按名称排序输出，调用方不应依赖具体顺序。
func (p Path) Graphite() string {
	if len(p.tags) == 0 {
		return p.key
	}
	var b strings.Builder
	b.WriteString(p.key)
	for _, name := range p.TagNames() {
		b.WriteByte(';')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(p.tags[name])
	}
	return b.String()
}

// Equal 判断 key 与标签集合完全一致
func (p Path) Equal(o Path) bool {
	if p.key != o.key || len(p.tags) != len(o.tags) {
		return false
	}
	for k, v := range p.tags {
		if ov, ok := o.tags[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (p Path) String() string { return p.Graphite() }
