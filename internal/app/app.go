package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ilinovom/stream-announce-bot/internal/config"
	"github.com/ilinovom/stream-announce-bot/internal/metrics"
	"github.com/ilinovom/stream-announce-bot/internal/service"
	"github.com/ilinovom/stream-announce-bot/pkg/discord"
)

const interactionTimeout = 10 * time.Second

// App coordinates the gateway connection, the command handler and the poller.
type App struct {
	cfg     *config.Config
	client  *discord.Client
	handler *CommandHandler
	poller  *Poller
	logger  *slog.Logger
}

func New(cfg *config.Config, client *discord.Client, store *service.StateStore, engine *service.Engine, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		cfg:     cfg,
		client:  client,
		handler: NewCommandHandler(store, cfg.DefaultDelaySec, logger.With("component", "commands")),
		poller:  NewPoller(engine, cfg.PollInterval, logger.With("component", "poller")),
		logger:  logger,
	}
}

func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := a.client.Session()
	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		a.logger.Info("logged in", "user", r.User.Username, "guilds", len(r.Guilds))
	})
	session.AddHandler(a.handleInteraction)

	if err := a.client.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	defer func() {
		if err := a.client.Close(); err != nil {
			a.logger.Warn("close discord session", "error", err)
		}
	}()

	if _, err := a.client.RegisterCommands(a.cfg.DiscordClientID, a.cfg.DiscordGuildID, commandDefinitions()); err != nil {
		a.logger.Error("register commands", "error", err)
	} else if a.cfg.DiscordGuildID != "" {
		a.logger.Info("registered guild commands", "guild", a.cfg.DiscordGuildID)
	} else {
		a.logger.Info("registered global commands")
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.poller.Run(ctx)
	}()

	if a.cfg.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metrics.Serve(ctx, a.cfg.MetricsAddr); err != nil {
				a.logger.Error("metrics server", "error", err)
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (a *App) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	var r reply
	if i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		r = reply{Content: "Use this command in a server.", Ephemeral: true}
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
		defer cancel()
		r = a.handler.Handle(ctx, requestFromInteraction(s, i))
	}

	data := &discordgo.InteractionResponseData{Content: r.Content}
	if r.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		a.logger.Warn("respond to interaction", "command", i.ApplicationCommandData().Name, "error", err)
	}
}

func requestFromInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) commandRequest {
	data := i.ApplicationCommandData()
	req := commandRequest{
		GuildID:     i.GuildID,
		UserID:      i.Member.User.ID,
		Permissions: i.Member.Permissions,
		RoleIDs:     i.Member.Roles,
		Command:     data.Name,
		Options:     map[string]*discordgo.ApplicationCommandInteractionDataOption{},
	}
	if g, err := s.State.Guild(i.GuildID); err == nil {
		req.OwnerID = g.OwnerID
	} else if g, err := s.Guild(i.GuildID); err == nil {
		req.OwnerID = g.OwnerID
	}

	opts := data.Options
	if len(opts) > 0 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		req.Subcommand = opts[0].Name
		opts = opts[0].Options
	}
	for _, o := range opts {
		req.Options[o.Name] = o
	}
	return req
}
