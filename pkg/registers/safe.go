package registers

import (
	"runtime/debug"

	"go.uber.org/zap"
)

// protect 执行 fn 并捕获 panic，返回 panic 值与堆栈
func protect(fn func()) (recovered any, stack []byte) {
	defer func() {
		if r := recover(); r != nil {
			recovered, stack = r, debug.Stack()
		}
	}()
	fn()
	return nil, nil
}

func panicFields(recovered any, stack []byte) []zap.Field {
	return []zap.Field{zap.Any("panic", recovered), zap.ByteString("stack", stack)}
}
