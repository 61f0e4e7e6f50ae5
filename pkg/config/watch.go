package config

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// watchDebounce coalesces the burst of events editors produce on save.
const watchDebounce = 250 * time.Millisecond

// Watch reloads config.toml whenever it changes on disk and calls onChange
// with the re-resolved Config. It returns false when v has no config file to
// watch.
func Watch(v *viper.Viper, logger *slog.Logger, onChange func(*Config)) bool {
	if v.ConfigFileUsed() == "" {
		return false
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		mu.Lock()
		defer mu.Unlock()

		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, func() {
			logger.Info("config reloaded", "file", e.Name)
			onChange(FromViper(v))
		})
	})
	v.WatchConfig()

	return true
}
