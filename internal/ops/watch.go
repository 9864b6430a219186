package ops

import (
	"context"
	"os"
	"time"

	"github.com/yanun0323/logs"
)

// Watch polls the config file's mtime and invokes apply with each
// successfully reloaded configuration. Invalid reloads are logged and
// the previous configuration stays in effect. Blocks until ctx ends.
func Watch(ctx context.Context, path string, interval time.Duration, apply func(Loaded)) {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	var lastMod time.Time
	if info, err := os.Stat(path); err == nil {
		lastMod = info.ModTime()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		info, err := os.Stat(path)
		if err != nil {
			logs.Warnf("config stat failed, err: %v", err)
			continue
		}
		if !info.ModTime().After(lastMod) {
			continue
		}
		lastMod = info.ModTime()

		loaded, err := Load(path)
		if err != nil {
			logs.Warnf("config reload rejected, keeping previous, err: %v", err)
			continue
		}
		logs.Infof("config reloaded from %s", path)
		apply(loaded)
	}
}
