package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/zulandar/atlas/internal/calllog"
	"github.com/zulandar/atlas/internal/config"
	"github.com/zulandar/atlas/internal/db"
	"github.com/zulandar/atlas/internal/gateway"
	"github.com/zulandar/atlas/internal/mirror"
	discordposter "github.com/zulandar/atlas/internal/mirror/discord"
	slackposter "github.com/zulandar/atlas/internal/mirror/slack"
	"gorm.io/gorm"
)

// newGateway builds the inference gateway. Tests replace it with a mock.
var newGateway = func(cfg *config.Config, rec gateway.Recorder) (gateway.Gateway, error) {
	key := cfg.Gemini.APIKey()
	if key == "" {
		return nil, fmt.Errorf("gateway: set %s (or add it to .env)", cfg.Gemini.APIKeyEnv)
	}
	client, err := gateway.NewClient(gateway.ClientOpts{
		APIKey:            key,
		BaseURL:           cfg.Gemini.BaseURL,
		Model:             cfg.Gemini.Model,
		ImageModel:        cfg.Gemini.ImageModel,
		HTTPClient:        &http.Client{Timeout: cfg.Gemini.Timeout},
		RequestsPerSecond: cfg.Gemini.RequestsPerSecond,
		MaxRetries:        cfg.Gemini.MaxRetries,
		DisableImages:     cfg.Gemini.DisableImages,
		Recorder:          rec,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// loadEnv reads .env from the working directory if one exists.
func loadEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("atlas: load .env: %v", err)
	}
}

// loadConfig reads the config file. A missing file at the default path
// falls back to built-in defaults; an explicitly named file must exist.
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		return config.Default(), nil
	}
	return nil, fmt.Errorf("load config: %w", err)
}

func dbOptions(cfg *config.Config) db.Options {
	return db.Options{
		Driver:   cfg.Database.Driver,
		Path:     cfg.Database.Path,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password(),
	}
}

// openCallLog connects to and migrates the call-log database. It returns a
// nil store when the call log is disabled.
func openCallLog(cfg *config.Config) (*calllog.Store, *gorm.DB, error) {
	if !cfg.Database.Enabled() {
		return nil, nil, nil
	}
	gormDB, err := db.Connect(dbOptions(cfg))
	if err != nil {
		return nil, nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, nil, err
	}
	store, err := calllog.NewStore(calllog.StoreOpts{DB: gormDB})
	if err != nil {
		return nil, nil, err
	}
	return store, gormDB, nil
}

// newPosters builds a mirror poster for every configured chat target.
func newPosters(cfg *config.Config) ([]mirror.Poster, error) {
	var posters []mirror.Poster
	if c := cfg.Mirror.Slack; c.Enabled() {
		p, err := slackposter.New(slackposter.PosterOpts{BotToken: c.BotToken(), ChannelID: c.Channel})
		if err != nil {
			return nil, err
		}
		posters = append(posters, p)
	}
	if c := cfg.Mirror.Discord; c.Enabled() {
		p, err := discordposter.New(discordposter.PosterOpts{BotToken: c.BotToken(), ChannelID: c.Channel})
		if err != nil {
			for _, prev := range posters {
				prev.Close()
			}
			return nil, err
		}
		posters = append(posters, p)
	}
	return posters, nil
}
