package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// discordSession abstracts the discordgo.Session methods we use, enabling
// test mocks.
type discordSession interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Close() error
}

// Discord posts events to a Discord channel. Sends go over the REST API, so
// no Gateway connection is opened.
type Discord struct {
	sess      discordSession
	channelID string
}

// DiscordOpts holds parameters for creating a Discord notifier.
type DiscordOpts struct {
	BotToken  string // Discord bot token
	ChannelID string // channel to post to
	// For testing: inject a mock session instead of the real Discord API.
	Session discordSession
}

// NewDiscord creates a Discord notifier.
func NewDiscord(opts DiscordOpts) (*Discord, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("notify: discord bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify: discord channel is required")
	}

	d := &Discord{channelID: opts.ChannelID}
	if opts.Session != nil {
		d.sess = opts.Session
	} else {
		dg, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("notify: create discord session: %w", err)
		}
		d.sess = dg
	}
	return d, nil
}

// Send posts the event as a Discord embed.
func (d *Discord) Send(ctx context.Context, event Event) error {
	embed := &discordgo.MessageEmbed{
		Title:       event.Title,
		Description: event.Body,
		Color:       hexToColor(event.Color),
	}
	for _, f := range event.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Short,
		})
	}

	_, err := d.sess.ChannelMessageSendEmbed(d.channelID, embed, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("notify: discord send: %w", err)
	}
	return nil
}

// Close releases the underlying session.
func (d *Discord) Close() error { return d.sess.Close() }

// hexToColor converts a "#rrggbb" color hint to Discord's integer form.
// Returns 0 (no sidebar color) on parse failure.
func hexToColor(hex string) int {
	hex = strings.TrimPrefix(hex, "#")
	v, err := strconv.ParseInt(hex, 16, 32)
	if err != nil {
		return 0
	}
	return int(v)
}
