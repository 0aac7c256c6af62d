// Package watcher 监视本地目录, 把新落盘的文档自动投递到摄取流程。
package watcher

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"carepulse-go/internal/service"
	"carepulse-go/pkg/log"
)

// Watch 监视 dir 中的文件创建和写入事件, 调用 uploadService.Intake 投递摄取。
// 阻塞运行, 直到 ctx 取消。编辑器写文件常见临时文件加改名的方式,
// Create 和 Write 按同一事件处理。
func Watch(ctx context.Context, dir string, uploadService service.UploadService) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Errorf("[Watcher] 创建文件监视器失败: %v", err)
		return
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		log.Errorf("[Watcher] 监视目录失败, dir: %s, Error: %v", dir, err)
		return
	}
	log.Infof("[Watcher] 开始监视目录: %s", dir)

	for {
		select {
		case <-ctx.Done():
			log.Info("[Watcher] 目录监视停止")
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				ingestFile(ctx, event.Name, uploadService)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Warnf("[Watcher] 监视器报告错误: %v", err)
		}
	}
}

func ingestFile(ctx context.Context, path string, uploadService service.UploadService) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		log.Warnf("[Watcher] 打开文件失败, path: %s, Error: %v", path, err)
		return
	}
	defer f.Close()

	fileName := filepath.Base(path)
	record, err := uploadService.Intake(ctx, fileName, info.Size(), f)
	if err != nil {
		log.Errorf("[Watcher] 投递摄取失败, path: %s, Error: %v", path, err)
		return
	}
	log.Infof("[Watcher] 已投递摄取任务, JobID: %d, FileName: %s", record.ID, fileName)
}
