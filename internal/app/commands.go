package app

import (
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/ilinovom/stream-announce-bot/internal/model"
)

const (
	AnnounceCmd  = "announce"
	AdminRoleCmd = "adminrole"
	HelpCmd      = "help"
)

var helpText = strings.Join([]string{
	"Commands:",
	"- /announce add channel:#ch service:(twitch|kick|rumble) username:<name> [role:@role] [message:\"template\"] [delay:0-300]",
	"- /announce remove channel:#ch service:(twitch|kick|rumble) username:<name>",
	"- /announce list",
	"- /announce setrole service:(twitch|kick|rumble) username:<name> role:@role",
	"- /announce setmessage channel:#ch service:(twitch|kick|rumble) username:<name> message:\"template\"",
	"- /announce setdelay service:(twitch|kick|rumble) username:<name> delay:0-300",
	"- /adminrole add role:@Role | remove role:@Role | list",
	"",
	"Notes:",
	"- Server owner/Admins always have access. Optionally allow roles via /adminrole.",
	"- Templates: {role} {user} {service} {title} {url}.",
	"- Delay waits before posting after live detected (max 300s).",
}, "\n")

func serviceChoices() []*discordgo.ApplicationCommandOptionChoice {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, len(model.Services))
	for i, s := range model.Services {
		choices[i] = &discordgo.ApplicationCommandOptionChoice{Name: string(s), Value: string(s)}
	}
	return choices
}

func channelOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionChannel,
		Name:         "channel",
		Description:  "Target text channel",
		Required:     true,
		ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
	}
}

func serviceOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "service",
		Description: "Streaming service",
		Required:    true,
		Choices:     serviceChoices(),
	}
}

func usernameOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "username",
		Description: "Channel username",
		Required:    true,
	}
}

func roleOption(required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionRole,
		Name:        "role",
		Description: "Role to mention",
		Required:    required,
	}
}

func delayOption(required bool) *discordgo.ApplicationCommandOption {
	minDelay := 0.0
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        "delay",
		Description: "Delay seconds (0-300)",
		Required:    required,
		MinValue:    &minDelay,
		MaxValue:    model.MaxDelaySec,
	}
}

func messageOption(required bool, description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "message",
		Description: description,
		Required:    required,
	}
}

func subcommand(name, description string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        name,
		Description: description,
		Options:     opts,
	}
}

// commandDefinitions returns the slash commands registered at startup.
func commandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        AnnounceCmd,
			Description: "Manage stream announcements",
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("add", "Add an announcement",
					channelOption(), serviceOption(), usernameOption(),
					roleOption(false), messageOption(false, "Custom message template"), delayOption(false)),
				subcommand("remove", "Remove an announcement",
					channelOption(), serviceOption(), usernameOption()),
				subcommand("list", "List announcements"),
				subcommand("setrole", "Set mention role",
					serviceOption(), usernameOption(), roleOption(true)),
				subcommand("setmessage", "Set custom message template",
					channelOption(), serviceOption(), usernameOption(),
					messageOption(true, "Template with {role},{user},{service},{title},{url}")),
				subcommand("setdelay", "Set delay in seconds (0-300)",
					serviceOption(), usernameOption(), delayOption(true)),
			},
		},
		{
			Name:        HelpCmd,
			Description: "Show bot commands and usage",
		},
		{
			Name:        AdminRoleCmd,
			Description: "Manage roles allowed to use announce commands",
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("add", "Allow a role", roleOption(true)),
				subcommand("remove", "Disallow a role", roleOption(true)),
				subcommand("list", "List allowed roles"),
			},
		},
	}
}
