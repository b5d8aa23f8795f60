//go:build windows && !dev

package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/getlantern/systray"

	conf "github.com/bartek5186/vk2cml/internal/config"
	"github.com/bartek5186/vk2cml/internal/db"
	logs "github.com/bartek5186/vk2cml/internal/logs"
	syncer "github.com/bartek5186/vk2cml/internal/syncer"
)

// overridable via: -ldflags "-X 'main.ver=1.0.1'"
var ver = "1.0.0"

func main() {
	appDir := mustAppDataDir("vk2cml")
	log := logs.New(filepath.Join(appDir, "app.log"), false)

	cfgPath := filepath.Join(appDir, "config.json")
	cfg, firstRun, err := conf.LoadOrCreate(cfgPath)
	if err != nil {
		panic(err)
	}
	if firstRun {
		log.Info().Msgf("default config written: %s", cfgPath)
	}

	dbh, err := db.OpenAt(appDir, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("DB open error")
	}
	if err := dbh.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("DB migrate error")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s := syncer.New(log, cfg, dbh.DB)

	go func() {
		<-ctx.Done()
		s.Stop()
		systray.Quit()
	}()

	systray.Run(func() {
		systray.SetTooltip(fmt.Sprintf("vk2cml Sync %s", ver))

		mStart := systray.AddMenuItem("Start sync", "Start the sync schedule")
		mStop := systray.AddMenuItem("Stop sync", "Stop the sync schedule")
		mStop.Disable()

		systray.AddSeparator()
		mOpenLogs := systray.AddMenuItem("Open logs", "Show the log file")
		mOpenCfg := systray.AddMenuItem("Settings (config.json)", "Open the config file")
		mReload := systray.AddMenuItem("Reload config", "Re-read config.json")
		systray.AddSeparator()
		mAbout := systray.AddMenuItem(fmt.Sprintf("About (%s)", ver), "")
		mQuit := systray.AddMenuItem("Quit", "Close the application")

		if cfg.AutoStart {
			if err := s.Start(ctx); err == nil {
				mStart.Disable()
				mStop.Enable()
				systray.SetTooltip(fmt.Sprintf("vk2cml Sync %s — running", ver))
			} else {
				log.Error().Msgf("autostart failed: %v", err)
				systray.SetTooltip(fmt.Sprintf("vk2cml Sync %s — start error", ver))
			}
		}

		go func() {
			for {
				select {
				case <-mStart.ClickedCh:
					if err := s.Start(ctx); err != nil {
						log.Error().Msgf("start error: %v", err)
						systray.SetTooltip(fmt.Sprintf("vk2cml Sync %s — start error", ver))
						continue
					}
					mStart.Disable()
					mStop.Enable()
					systray.SetTooltip(fmt.Sprintf("vk2cml Sync %s — running", ver))

				case <-mStop.ClickedCh:
					s.Stop()
					mStop.Disable()
					mStart.Enable()
					systray.SetTooltip(fmt.Sprintf("vk2cml Sync %s — stopped", ver))

				case <-mOpenLogs.ClickedCh:
					openInExplorer(filepath.Join(appDir, "app.log"))

				case <-mOpenCfg.ClickedCh:
					openInExplorer(cfgPath)

				case <-mReload.ClickedCh:
					newCfg, _, err := conf.LoadOrCreate(cfgPath)
					if err != nil {
						log.Error().Msgf("reload error: %v", err)
						continue
					}
					cfg = newCfg
					s.UpdateConfig(cfg)
					log.Info().Msg("config reloaded")

				case <-mAbout.ClickedCh:
					log.Info().Msgf("vk2cml Sync %s | %s", ver, runtime.Version())

				case <-mQuit.ClickedCh:
					cancel()
					s.Stop()
					systray.Quit()
					return
				}
			}
		}()
	}, func() {
		// onExit: give the logger a moment to flush
		time.Sleep(50 * time.Millisecond)
	})
}

func mustAppDataDir(name string) string {
	base, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	p := filepath.Join(base, name)
	_ = os.MkdirAll(p, 0o755)
	return p
}

// open a file/directory with the default application, portably
func openInExplorer(path string) {
	switch runtime.GOOS {
	case "windows":
		// "start" must run through cmd /C with an empty window title
		_ = exec.Command("cmd", "/C", "start", "", path).Start()
	case "darwin":
		_ = exec.Command("open", path).Start()
	default:
		_ = exec.Command("xdg-open", path).Start()
	}
}
