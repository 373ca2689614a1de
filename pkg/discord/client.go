package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// ErrChannelNotFound is returned when a channel is deleted or not visible to the bot.
var ErrChannelNotFound = errors.New("discord: channel not found")

// Client is a thin wrapper over a discordgo session used to deliver announcements.
type Client struct {
	session *discordgo.Session
}

func NewClient(token string) (*Client, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds
	return &Client{session: s}, nil
}

// Session exposes the underlying session for handler registration.
func (c *Client) Session() *discordgo.Session { return c.session }

func (c *Client) Open() error  { return c.session.Open() }
func (c *Client) Close() error { return c.session.Close() }

// ResolveChannel checks the state cache first and falls back to the REST API.
func (c *Client) ResolveChannel(ctx context.Context, channelID string) error {
	if _, err := c.session.State.Channel(channelID); err == nil {
		return nil
	}
	ch, err := c.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Response != nil {
			switch restErr.Response.StatusCode {
			case http.StatusNotFound, http.StatusForbidden:
				return fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
			}
		}
		return err
	}
	if ch == nil {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
	}
	return nil
}

func (c *Client) SendMessage(ctx context.Context, channelID, content string) error {
	_, err := c.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	return err
}

// RegisterCommands overwrites the application's slash commands, globally or
// for guildID when it is not empty.
func (c *Client) RegisterCommands(appID, guildID string, cmds []*discordgo.ApplicationCommand) ([]*discordgo.ApplicationCommand, error) {
	if appID == "" {
		if c.session.State.User == nil {
			return nil, errors.New("discord: application id unknown before ready")
		}
		appID = c.session.State.User.ID
	}
	return c.session.ApplicationCommandBulkOverwrite(appID, guildID, cmds)
}
