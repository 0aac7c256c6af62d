package log

import (
	"errors"
	"testing"
)

func TestLoggingBeforeInitDoesNotPanic(t *testing.T) {
	Info("plain message")
	Infof("formatted %d", 1)
	Infow("structured", "key", "value")
	Warnf("warning %s", "w")
	Error("error message", errors.New("boom"))
	Errorf("error %v", errors.New("boom"))
	Sync()
}

func TestInitConfiguresLogger(t *testing.T) {
	Init("info", "console", "")
	Infof("after init %s", "ok")

	// 非法级别回退为 info, 不报错
	Init("not-a-level", "json", "")
	Info("still works")
}
