package registers

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Actor 触发 reload 的一方，接收 reload 结果的文本消息
type Actor interface {
	Name() string
	Notify(level zapcore.Level, msg string)
}

// Message reload 过程中发给 actor 的一条消息
type Message struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// MessageActor 收集消息，HTTP 与 CLI 的 reload 入口使用
type MessageActor struct {
	name string

	mu       sync.Mutex
	messages []Message
}

func NewMessageActor(name string) *MessageActor {
	return &MessageActor{name: name}
}

func (a *MessageActor) Name() string { return a.name }

func (a *MessageActor) Notify(level zapcore.Level, msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, Message{Level: level.String(), Message: msg})
}

// Messages 已收到的消息副本
func (a *MessageActor) Messages() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Message(nil), a.messages...)
}

// LogActor 把消息写入日志（SIGHUP 与文件监听触发时使用）
type LogActor struct {
	name string
	log  *zap.Logger
}

func NewLogActor(name string, log *zap.Logger) *LogActor {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogActor{name: name, log: log}
}

func (a *LogActor) Name() string { return a.name }

func (a *LogActor) Notify(level zapcore.Level, msg string) {
	if ce := a.log.Check(level, msg); ce != nil {
		ce.Write(zap.String("actor", a.name))
	}
}

// notify 有 actor 时发给 actor，否则写运维日志
func notify(log *zap.Logger, actor Actor, level zapcore.Level, msg string, fields ...zap.Field) {
	if actor != nil {
		actor.Notify(level, msg)
		return
	}
	if ce := log.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}
