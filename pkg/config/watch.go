package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch 监听配置文件变更，每次写入/重建后调用 onChange，直到 ctx 取消
// 监听所在目录：原子保存（写临时文件再 rename 覆盖）会替换 inode，只有目录能收到 Create。
// 重新加载与校验由 onChange 负责（失败时保留旧配置）。
func Watch(ctx context.Context, path string, log *zap.Logger, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	file := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(file)); err != nil {
		return err
	}
	log.Info("watching config for changes", zap.String("path", file))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != file {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			log.Info("config file changed", zap.String("path", file), zap.String("op", event.Op.String()))
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("config watcher error", zap.Error(err))
		}
	}
}
