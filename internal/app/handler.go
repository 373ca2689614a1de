package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/ilinovom/stream-announce-bot/internal/model"
	"github.com/ilinovom/stream-announce-bot/internal/service"
)

// commandRequest is a slash command invocation stripped of the gateway types.
type commandRequest struct {
	GuildID     string
	UserID      string
	OwnerID     string
	Permissions int64
	RoleIDs     []string
	Command     string
	Subcommand  string
	Options     map[string]*discordgo.ApplicationCommandInteractionDataOption
}

type reply struct {
	Content   string
	Ephemeral bool
}

// CommandHandler implements the administration commands on top of the state store.
type CommandHandler struct {
	store        *service.StateStore
	defaultDelay int
	logger       *slog.Logger
}

func NewCommandHandler(store *service.StateStore, defaultDelay int, logger *slog.Logger) *CommandHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandHandler{store: store, defaultDelay: model.ClampDelay(defaultDelay), logger: logger}
}

// Handle dispatches req and returns the reply to show the user.
func (h *CommandHandler) Handle(ctx context.Context, req commandRequest) reply {
	switch req.Command {
	case HelpCmd:
		return reply{Content: helpText, Ephemeral: true}
	case AdminRoleCmd:
		if !isOwnerOrAdmin(req) {
			return reply{Content: "You need Manage Server permission.", Ephemeral: true}
		}
		return h.handleAdminRole(ctx, req)
	case AnnounceCmd:
		if !h.canUseAnnounce(req) {
			return reply{Content: "You lack permission for this command.", Ephemeral: true}
		}
		return h.handleAnnounce(ctx, req)
	}
	h.logger.Warn("unknown command", "command", req.Command)
	return reply{Content: "Unknown command.", Ephemeral: true}
}

func isOwnerOrAdmin(req commandRequest) bool {
	if req.OwnerID != "" && req.OwnerID == req.UserID {
		return true
	}
	return req.Permissions&discordgo.PermissionAdministrator != 0 ||
		req.Permissions&discordgo.PermissionManageServer != 0
}

// canUseAnnounce allows owners and admins, and members holding an allowlisted role.
func (h *CommandHandler) canUseAnnounce(req commandRequest) bool {
	if isOwnerOrAdmin(req) {
		return true
	}
	for _, role := range h.store.AdminRoles(req.GuildID) {
		if slices.Contains(req.RoleIDs, role) {
			return true
		}
	}
	return false
}

func (h *CommandHandler) handleAnnounce(ctx context.Context, req commandRequest) reply {
	if req.Subcommand == "list" {
		return h.announceList(req)
	}

	svc, err := model.ParseService(optString(req.Options, "service"))
	if err != nil {
		return reply{Content: "Unknown service. Use twitch, kick or rumble.", Ephemeral: true}
	}
	user := model.NormalizeUser(optString(req.Options, "username"))
	channelID := optID(req.Options, "channel")
	roleID := optID(req.Options, "role")

	switch req.Subcommand {
	case "add":
		delay := h.defaultDelay
		if o, ok := req.Options["delay"]; ok {
			delay = int(o.IntValue())
		}
		sub, err := h.store.AddSubscription(ctx, model.Subscription{
			GuildID:   req.GuildID,
			ChannelID: channelID,
			Service:   svc,
			User:      user,
			RoleID:    roleID,
			Template:  optString(req.Options, "message"),
			DelaySec:  delay,
		})
		if errors.Is(err, service.ErrInvalidSubscription) {
			return reply{Content: "Invalid subscription: " + err.Error(), Ephemeral: true}
		}
		if err != nil {
			return h.failed(req, err)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Added %s:%s in <#%s>", sub.Service, sub.User, sub.ChannelID)
		if sub.RoleID != "" {
			fmt.Fprintf(&b, " mentioning <@&%s>", sub.RoleID)
		}
		fmt.Fprintf(&b, " (delay %ds)", sub.DelaySec)
		return reply{Content: b.String()}

	case "remove":
		n, err := h.store.RemoveSubscriptions(ctx, req.GuildID, channelID, svc, user)
		if err != nil {
			return h.failed(req, err)
		}
		if n == 0 {
			return reply{Content: "No matching subscription found."}
		}
		return reply{Content: fmt.Sprintf("Removed %s:%s from <#%s>", svc, user, channelID)}

	case "setrole":
		_, err := h.store.SetRole(ctx, req.GuildID, svc, user, roleID)
		return h.updated(req, err, fmt.Sprintf("Updated role for %s:%s to <@&%s>", svc, user, roleID))

	case "setmessage":
		_, err := h.store.SetMessage(ctx, req.GuildID, channelID, svc, user, optString(req.Options, "message"))
		return h.updated(req, err, fmt.Sprintf("Updated message for %s:%s in <#%s>", svc, user, channelID))

	case "setdelay":
		var delay int
		if o, ok := req.Options["delay"]; ok {
			delay = model.ClampDelay(int(o.IntValue()))
		}
		_, err := h.store.SetDelay(ctx, req.GuildID, svc, user, delay)
		return h.updated(req, err, fmt.Sprintf("Updated delay for %s:%s to %ds", svc, user, delay))
	}
	return reply{Content: "Unknown subcommand.", Ephemeral: true}
}

func (h *CommandHandler) announceList(req commandRequest) reply {
	subs := h.store.ListSubscriptions(req.GuildID)
	if len(subs) == 0 {
		return reply{Content: "No subscriptions.", Ephemeral: true}
	}
	lines := make([]string, 0, len(subs))
	for _, s := range subs {
		line := fmt.Sprintf("<#%s> — [%s] %s", s.ChannelID, s.Service, s.User)
		if s.RoleID != "" {
			line += fmt.Sprintf(" (role <@&%s>)", s.RoleID)
		}
		if s.Template != "" {
			line += " (custom msg)"
		}
		if s.DelaySec > 0 {
			line += fmt.Sprintf(" (delay %ds)", s.DelaySec)
		}
		lines = append(lines, line)
	}
	return reply{Content: strings.Join(lines, "\n"), Ephemeral: true}
}

func (h *CommandHandler) handleAdminRole(ctx context.Context, req commandRequest) reply {
	roleID := optID(req.Options, "role")
	switch req.Subcommand {
	case "add":
		if _, err := h.store.AddAdminRole(ctx, req.GuildID, roleID); err != nil {
			return h.failed(req, err)
		}
		return reply{Content: fmt.Sprintf("Allowed role <@&%s>", roleID), Ephemeral: true}
	case "remove":
		removed, err := h.store.RemoveAdminRole(ctx, req.GuildID, roleID)
		if err != nil {
			return h.failed(req, err)
		}
		if !removed {
			return reply{Content: "Role not in allowlist.", Ephemeral: true}
		}
		return reply{Content: fmt.Sprintf("Removed role <@&%s>", roleID), Ephemeral: true}
	case "list":
		roles := h.store.AdminRoles(req.GuildID)
		if len(roles) == 0 {
			return reply{Content: "No roles allowed. Only Admins/Owners can use commands.", Ephemeral: true}
		}
		mentions := make([]string, len(roles))
		for i, r := range roles {
			mentions[i] = "<@&" + r + ">"
		}
		return reply{Content: strings.Join(mentions, ", "), Ephemeral: true}
	}
	return reply{Content: "Unknown subcommand.", Ephemeral: true}
}

// updated turns the result of a bulk update into a reply.
func (h *CommandHandler) updated(req commandRequest, err error, success string) reply {
	if errors.Is(err, service.ErrNotFound) {
		return reply{Content: "No matching subscriptions."}
	}
	if err != nil {
		return h.failed(req, err)
	}
	return reply{Content: success}
}

func (h *CommandHandler) failed(req commandRequest, err error) reply {
	h.logger.Error("command failed",
		"command", req.Command,
		"subcommand", req.Subcommand,
		"guild", req.GuildID,
		"error", err)
	return reply{Content: "Failed to save changes, please try again.", Ephemeral: true}
}

func optString(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	if o, ok := opts[name]; ok && o.Type == discordgo.ApplicationCommandOptionString {
		return o.StringValue()
	}
	return ""
}

// optID returns the snowflake carried by a channel, role or user option.
func optID(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	if o, ok := opts[name]; ok {
		if id, ok := o.Value.(string); ok {
			return id
		}
	}
	return ""
}
