package goid

import (
	"bytes"
	"runtime"

	"go.uber.org/zap"
)

var stackPrefix = []byte("goroutine ")

// GetGID 当前 goroutine 的 ID，栈头格式 "goroutine 123 [running]:"，解析失败返回 0
func GetGID() uint64 {
	var buf [64]byte
	head, ok := bytes.CutPrefix(buf[:runtime.Stack(buf[:], false)], stackPrefix)
	if !ok {
		return 0
	}
	var id uint64
	for _, c := range head {
		if c < '0' || c > '9' {
			return id
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}

// Field 日志字段 goid
func Field() zap.Field {
	return zap.Uint64("goid", GetGID())
}
