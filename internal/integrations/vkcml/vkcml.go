// Package vkcml is the scheduled VK→CommerceML integration: on every tick
// it runs one export and journals the outcome.
package vkcml

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/bartek5186/vk2cml/internal/cml"
	"github.com/bartek5186/vk2cml/internal/db"
	"github.com/bartek5186/vk2cml/internal/export"
	"github.com/bartek5186/vk2cml/internal/integrations"
	"github.com/bartek5186/vk2cml/internal/vk"
)

type Config struct {
	CmlURL      string `json:"cml_url"`
	CmlLogin    string `json:"cml_login"`
	CmlPassword string `json:"cml_password"`

	VkToken   string `json:"vk_token"`
	VkGroupID int64  `json:"vk_group_id"`

	WithDisabled       bool `json:"with_disabled"`
	WithPhotos         bool `json:"with_photos"`
	SkipMultipleGroup  bool `json:"skip_multiple_group"`
	MakeCategoryReport bool `json:"make_category_report"`

	// ReportDir is where the category CSV is dropped after each run.
	ReportDir string `json:"report_dir,omitempty"`
	// DebugDir enables mirroring of uploaded documents.
	DebugDir string `json:"debug_dir,omitempty"`
	PollMin  int    `json:"poll_min"`
}

type VkCml struct {
	log zerolog.Logger
	cfg Config
	db  *gorm.DB
	svc *export.Service

	ctx    context.Context
	cancel context.CancelFunc
}

func (v *VkCml) Name() string { return "vkcml" }

func (v *VkCml) Start(ctx context.Context) error {
	v.ctx, v.cancel = context.WithCancel(ctx)
	v.log.Info().Str("integration", v.Name()).Msg("start")

	ticker := time.NewTicker(v.interval())
	defer ticker.Stop()

	// first run right away
	v.runOnce(v.ctx)

	for {
		select {
		case <-v.ctx.Done():
			v.log.Info().Str("integration", v.Name()).Msg("stop")
			return nil
		case <-ticker.C:
			v.runOnce(v.ctx)
			ticker.Reset(v.interval())
		}
	}
}

func (v *VkCml) Stop() {
	if v.cancel != nil {
		v.cancel()
	}
}

func (v *VkCml) interval() time.Duration {
	if v.cfg.PollMin <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(v.cfg.PollMin) * time.Minute
}

// RunConfig exposes the per-run settings for one-off runs from the CLI.
func (v *VkCml) RunConfig() export.RunConfig {
	return export.RunConfig{
		CmlURL:             v.cfg.CmlURL,
		CmlLogin:           v.cfg.CmlLogin,
		CmlPassword:        v.cfg.CmlPassword,
		VkToken:            v.cfg.VkToken,
		VkGroupID:          v.cfg.VkGroupID,
		WithDisabled:       v.cfg.WithDisabled,
		WithPhotos:         v.cfg.WithPhotos,
		SkipMultipleGroup:  v.cfg.SkipMultipleGroup,
		MakeCategoryReport: v.cfg.MakeCategoryReport,
	}
}

func (v *VkCml) Service() *export.Service { return v.svc }

func (v *VkCml) runOnce(ctx context.Context) {
	run := db.SyncRun{StartedAt: time.Now(), Status: db.RunStatusRunning}
	if v.db != nil {
		if err := v.db.Create(&run).Error; err != nil {
			v.log.Error().Err(err).Msg("journal create failed")
		}
	}

	status := db.RunStatusDone
	for ev := range v.svc.Run(ctx, v.RunConfig()) {
		switch ev.Kind {
		case export.EventFetchOK:
			v.log.Info().Int("items", ev.Count).Msg("products fetched")
			run.ItemCount = ev.Count
		case export.EventDocumentsOK:
			v.log.Info().Msg("documents uploaded")
			run.Report = ev.Report
			v.saveReport(ev.Report)
		case export.EventPhotosOK:
			v.log.Info().Int("photos", ev.Count).Msg("photos uploaded")
			run.PhotoCount = ev.Count
		case export.EventFetchFailed, export.EventDocumentsFailed,
			export.EventPhotosFailed, export.EventRunFailed:
			v.log.Error().Str("phase", ev.Kind.String()).Str("reason", ev.Reason).Msg("sync failed")
			status = db.RunStatusFailed
			run.LastError = ev.Reason
		}
	}

	now := time.Now()
	run.FinishedAt = &now
	run.Status = status
	if v.db != nil {
		if err := v.db.Save(&run).Error; err != nil {
			v.log.Error().Err(err).Msg("journal update failed")
		}
	}
}

func (v *VkCml) saveReport(report string) {
	if v.cfg.ReportDir == "" || report == "" {
		return
	}
	_ = os.MkdirAll(v.cfg.ReportDir, 0o755)
	path := filepath.Join(v.cfg.ReportDir, "categories.csv")
	if err := os.WriteFile(path, []byte(report), 0o644); err != nil {
		v.log.Error().Err(err).Str("path", path).Msg("category report write failed")
		return
	}
	v.log.Info().Str("path", path).Msg("category report written")
}

func factory(deps integrations.Deps, raw json.RawMessage) (integrations.Integration, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	svc := export.NewService(
		deps.Log,
		vk.NewClient(deps.Log),
		cml.NewClient(deps.Log, cfg.DebugDir),
	)
	return &VkCml{log: deps.Log, cfg: cfg, db: deps.DB, svc: svc}, nil
}

func init() {
	integrations.Register("vkcml", factory)
}
