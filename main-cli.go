//go:build !windows || dev

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bartek5186/vk2cml/internal/cml"
	conf "github.com/bartek5186/vk2cml/internal/config"
	"github.com/bartek5186/vk2cml/internal/db"
	"github.com/bartek5186/vk2cml/internal/export"
	"github.com/bartek5186/vk2cml/internal/integrations/vkcml"
	logs "github.com/bartek5186/vk2cml/internal/logs"
	syncer "github.com/bartek5186/vk2cml/internal/syncer"
	"github.com/bartek5186/vk2cml/internal/vk"

	"github.com/rs/zerolog"
)

var ver = "1.0.0"

func main() {
	appDir := mustAppDataDir("vk2cml")
	log := logs.New(filepath.Join(appDir, "app.log"), true)

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
	log.Info().Str("db", dbh.Path).Msg("DB ready")
	sqlDB, _ := dbh.DB.DB()
	defer sqlDB.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s := syncer.New(log, cfg, dbh.DB)

	if cfg.AutoStart {
		if err := s.Start(ctx); err != nil {
			log.Error().Msgf("autostart failed: %v", err)
		} else {
			log.Info().Msgf("vk2cml %s — running", ver)
		}
	}

	fmt.Println("vk2cml CLI", ver)
	fmt.Println("commands: start | stop | sync | token <code> | groups | reload | status | paths | quit")
	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print("> ")
		line, _ := reader.ReadString('\n')
		fields := strings.Fields(strings.TrimSpace(line))
		cmd := ""
		if len(fields) > 0 {
			cmd = strings.ToLower(fields[0])
		}

		switch cmd {
		case "start":
			if err := s.Start(ctx); err != nil {
				log.Error().Msgf("start error: %v", err)
				fmt.Println("start failed:", err)
				continue
			}
			fmt.Println("started")
		case "stop":
			s.Stop()
			fmt.Println("stopped")
		case "sync":
			syncNow(ctx, log, cfg)
		case "token":
			if len(fields) < 2 {
				fmt.Println("usage: token <code>")
				continue
			}
			token, err := vk.NewClient(log).ExchangeCode(ctx,
				cfg.VkClientID, cfg.VkClientSecret, cfg.VkRedirectURI, fields[1])
			if err != nil {
				fmt.Println("exchange failed:", err)
				continue
			}
			fmt.Println("access token:", token)
			fmt.Println("put it into the vkcml section of", cfgPath)
		case "groups":
			listGroups(ctx, log, cfg)
		case "reload":
			newCfg, _, err := conf.LoadOrCreate(cfgPath)
			if err != nil {
				log.Error().Msgf("reload error: %v", err)
				fmt.Println("reload failed:", err)
				continue
			}
			cfg = newCfg
			s.UpdateConfig(cfg)
			fmt.Println("config reloaded")
		case "status":
			if s.IsRunning() {
				fmt.Println("status: RUNNING")
			} else {
				fmt.Println("status: STOPPED")
			}
		case "paths":
			fmt.Println("logs:", filepath.Join(appDir, "app.log"))
			fmt.Println("config:", cfgPath)
			fmt.Println("db:", dbh.Path)
		case "quit", "exit":
			cancel()
			s.Stop()
			time.Sleep(50 * time.Millisecond)
			return
		case "":
			// plain enter, ignore
		default:
			fmt.Println("unknown command; use: start | stop | sync | token <code> | groups | reload | status | paths | quit")
		}
	}
}

// syncNow runs one export outside the schedule and prints its events.
func syncNow(ctx context.Context, log zerolog.Logger, cfg *conf.Config) {
	var c vkcml.Config
	if err := cfg.UnmarshalIntegration("vkcml", &c); err != nil {
		fmt.Println("config error:", err)
		return
	}
	svc := export.NewService(log, vk.NewClient(log), cml.NewClient(log, c.DebugDir))
	for ev := range svc.Run(ctx, export.RunConfig{
		CmlURL:             c.CmlURL,
		CmlLogin:           c.CmlLogin,
		CmlPassword:        c.CmlPassword,
		VkToken:            c.VkToken,
		VkGroupID:          c.VkGroupID,
		WithDisabled:       c.WithDisabled,
		WithPhotos:         c.WithPhotos,
		SkipMultipleGroup:  c.SkipMultipleGroup,
		MakeCategoryReport: c.MakeCategoryReport,
	}) {
		switch ev.Kind {
		case export.EventFetchOK:
			fmt.Printf("fetched %d products\n", ev.Count)
		case export.EventDocumentsOK:
			fmt.Println("documents uploaded")
			if ev.Report != "" {
				fmt.Println(ev.Report)
			}
		case export.EventPhotosOK:
			fmt.Printf("uploaded %d photos\n", ev.Count)
		default:
			fmt.Printf("%s: %s\n", ev.Kind, ev.Reason)
		}
	}
}

func listGroups(ctx context.Context, log zerolog.Logger, cfg *conf.Config) {
	var c vkcml.Config
	if err := cfg.UnmarshalIntegration("vkcml", &c); err != nil {
		fmt.Println("config error:", err)
		return
	}
	session, err := vk.NewClient(log).Session(c.VkToken)
	if err != nil {
		fmt.Println("session error:", err)
		return
	}
	defer session.Close()
	groups, err := session.Groups(ctx)
	if err != nil {
		fmt.Println("groups error:", err)
		return
	}
	for _, g := range groups {
		fmt.Printf("%d\t%s\n", g.ID, g.Name)
	}
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
