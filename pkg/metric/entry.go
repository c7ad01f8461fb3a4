package metric

import (
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap/zapcore"
)

// Entry 单个带时间戳的数值采样，一次 scrape/dispatch 周期后即丢弃
type Entry struct {
	path      Path
	value     float64
	timestamp time.Time
}

// NewEntry 以当前时间创建采样
func NewEntry(path Path, value float64) Entry {
	return NewEntryAt(path, value, time.Now())
}

// NewTaggedEntry 直接使用 key + tags 创建采样
func NewTaggedEntry(key string, tags map[string]string, value float64) Entry {
	return NewEntry(NewPath(key, tags), value)
}

// NewEntryAt 使用指定时间戳创建采样
func NewEntryAt(path Path, value float64, ts time.Time) Entry {
	return Entry{path: path, value: value, timestamp: ts}
}

func (e Entry) Path() Path              { return e.path }
func (e Entry) Key() string             { return e.path.key }
func (e Entry) Tags() map[string]string { return e.path.Tags() }
func (e Entry) Value() float64          { return e.value }
func (e Entry) Timestamp() time.Time    { return e.timestamp }

// Graphite 渲染为 graphite 明文协议的一行：<namespace.>?<path> <value> <unix秒>
func (e Entry) Graphite(namespace string) string {
	name := e.path.Graphite()
	if namespace != "" {
		name = namespace + "." + name
	}
	return name + " " + FormatValue(e.value) + " " + strconv.FormatInt(e.timestamp.Unix(), 10)
}

// String 调试输出
func (e Entry) String() string {
	return fmt.Sprintf("Entry{key=%s, tags=%v, value=%s, timestamp=%s}",
		e.path.key, e.path.tags, FormatValue(e.value), e.timestamp.Format(time.RFC3339))
}

// MarshalLogObject 实现 zapcore.ObjectMarshaler
func (e Entry) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("key", e.path.key)
	for _, name := range e.path.TagNames() {
		enc.AddString("tag."+name, e.path.tags[name])
	}
	enc.AddFloat64("value", e.value)
	enc.AddTime("timestamp", e.timestamp)
	return nil
}

// FormatValue 最短十进制表示，不使用科学计数法
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
