package main

import (
	"errors"
	"fmt"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/config"
	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/db"
	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/deadlines"
	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/models"
	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/notify"
	"gorm.io/gorm"
)

// connectFromConfig loads config and returns a GORM DB connection.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", cfg.Database.Database, err)
	}

	return cfg, gormDB, nil
}

// getRecord loads a record by its normalized reference.
func getRecord(gormDB *gorm.DB, ref string) (*models.RecordCard, error) {
	var record models.RecordCard
	err := gormDB.First(&record, "normalized_record_id = ?", ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("record %q not found", ref)
	}
	if err != nil {
		return nil, fmt.Errorf("load record %q: %w", ref, err)
	}
	return &record, nil
}

// buildAnnouncer wires the configured chat notifiers, if any.
func buildAnnouncer(cfg *config.Config, gormDB *gorm.DB) (*notify.Announcer, error) {
	var notifiers notify.Multi
	if cfg.Notify.Slack.BotToken != "" {
		s, err := notify.NewSlack(notify.SlackOpts{
			BotToken:  cfg.Notify.Slack.BotToken,
			ChannelID: cfg.Notify.Slack.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, s)
	}
	if cfg.Notify.Discord.BotToken != "" {
		d, err := notify.NewDiscord(notify.DiscordOpts{
			BotToken:  cfg.Notify.Discord.BotToken,
			ChannelID: cfg.Notify.Discord.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, d)
	}
	if len(notifiers) == 0 {
		return nil, nil
	}
	return &notify.Announcer{DB: gormDB, Notifier: notifiers}, nil
}

// deadlineOpts maps config settings to deadline computation options.
func deadlineOpts(cfg *config.Config) deadlines.Options {
	return deadlines.Options{
		DefaultSLADays:  cfg.SLA.DefaultDays,
		NearExpireRatio: cfg.SLA.NearExpireRatio,
		ClaimsThreshold: cfg.Staleness.ClaimsThreshold,
		StaleDays:       cfg.Staleness.AmbitStaleDays,
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
