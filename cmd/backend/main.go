package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	audioimpl "github.com/foxseedlab/signscribe/external/audio"
	configloader "github.com/foxseedlab/signscribe/external/config"
	"github.com/foxseedlab/signscribe/external/discord"
	followupimpl "github.com/foxseedlab/signscribe/external/followup"
	recognizerimpl "github.com/foxseedlab/signscribe/external/recognizer"
	repositoryimpl "github.com/foxseedlab/signscribe/external/repository"
	transcriberimpl "github.com/foxseedlab/signscribe/external/transcriber"
	webhookimpl "github.com/foxseedlab/signscribe/external/webhook"
	"github.com/foxseedlab/signscribe/internal/config"
	discordpkg "github.com/foxseedlab/signscribe/internal/discord"
	"github.com/foxseedlab/signscribe/internal/visit"
	"github.com/samber/do/v2"
)

const discordConnectTimeout = 20 * time.Second

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "version", visit.AppVersion)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching visit capture")
	if err := run(cfg, injector); err != nil {
		slog.Error("visit capture stopped with error", "error", err)
		os.Exit(1)
	}
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	audioimpl.RegisterDI(injector)
	discord.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	followupimpl.RegisterDI(injector)
	recognizerimpl.RegisterDI(injector)
	visit.RegisterDI(injector)

	return injector
}

func run(cfg *config.Config, injector do.Injector) error {
	dc, err := do.Invoke[discordpkg.Client](injector)
	if err != nil {
		return err
	}
	manager, err := do.Invoke[*visit.Manager](injector)
	if err != nil {
		return err
	}

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), discordConnectTimeout)
	defer cancelConnect()

	slog.Info("startup: connecting to discord gateway")
	if err := dc.Connect(connectCtx); err != nil {
		return err
	}
	slog.Info("startup: discord connected")
	defer func() {
		if err := dc.Close(); err != nil {
			slog.Error("discord close failed", "error", err)
		}
	}()

	if err := dc.UpsertGuildSlashCommands(cfg.DiscordGuildID, visit.SlashCommandDefinitions()); err != nil {
		slog.Error("failed to upsert slash commands", "error", err, "guild_id", cfg.DiscordGuildID)
		return err
	}
	dc.RegisterSlashCommandHandler(manager.HandleSlashCommand)
	slog.Info("discord handlers registered", "guild_id", cfg.DiscordGuildID, "commands", []string{
		visit.CommandStart, visit.CommandStop, visit.CommandReset, visit.CommandRecord, visit.CommandNote, visit.CommandExport,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("startup: entering visit loop")
	err = manager.Run(ctx)
	slog.Info("shutting down")
	return err
}
