// Package discord posts mirrored conversation entries to a Discord channel.
package discord

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/atlas/internal/mirror"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for rate-limit retries.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff.
	maxBackoff = 2 * time.Minute
	// threadArchiveMinutes is how long an idle round thread stays open.
	threadArchiveMinutes = 1440
	// maxThreadName is Discord's limit on thread names.
	maxThreadName = 100
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageThreadStartComplex(channelID, messageID string, data *discordgo.ThreadStart) (*discordgo.Channel, error)
	Close() error
}

// realSession wraps *discordgo.Session to implement the session interface.
type realSession struct {
	s *discordgo.Session
}

func (r *realSession) Close() error { return r.s.Close() }
func (r *realSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageSendComplex(channelID, data, options...)
}
func (r *realSession) MessageThreadStartComplex(channelID, messageID string, data *discordgo.ThreadStart) (*discordgo.Channel, error) {
	return r.s.MessageThreadStartComplex(channelID, messageID, data)
}

// Poster implements mirror.Poster for Discord. The first message of a round
// is posted to the channel and a thread is started from it; later messages
// go to that thread. Only the REST API is used, so no gateway connection is
// opened.
type Poster struct {
	sess        session
	channelID   string
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// PosterOpts holds parameters for creating a Discord Poster.
type PosterOpts struct {
	BotToken  string // Discord bot token
	ChannelID string // channel to post to
	// For testing: inject a mock session instead of the real Discord API.
	Session session
}

// New creates a Discord Poster.
func New(opts PosterOpts) (*Poster, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("discord: channel is required")
	}
	sess := opts.Session
	if sess == nil {
		dg, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("discord: create session: %w", err)
		}
		sess = &realSession{s: dg}
	}
	return &Poster{
		sess:        sess,
		channelID:   opts.ChannelID,
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}, nil
}

// Name implements mirror.Poster.
func (p *Poster) Name() string { return "discord" }

// Post implements mirror.Poster. In Discord, threads are channels, so the
// returned thread ID is the thread's channel ID.
func (p *Poster) Post(ctx context.Context, msg mirror.Message) (string, error) {
	target := msg.ThreadID
	if target == "" {
		target = p.channelID
	}
	data := buildMessageSend(msg)

	var sent *discordgo.Message
	err := p.retryOnRateLimit(ctx, func() error {
		var sendErr error
		sent, sendErr = p.sess.ChannelMessageSendComplex(target, data, discordgo.WithContext(ctx))
		return sendErr
	})
	if err != nil {
		return "", fmt.Errorf("discord: send message: %w", err)
	}
	if msg.ThreadID != "" {
		return msg.ThreadID, nil
	}

	threadID, err := p.startThread(ctx, sent.ID, msg.ThreadName)
	if err != nil {
		// The message went out; later entries fall back to the channel.
		log.Printf("discord: %v", err)
		return "", nil
	}
	return threadID, nil
}

// Close implements mirror.Poster.
func (p *Poster) Close() error {
	return p.sess.Close()
}

func (p *Poster) startThread(ctx context.Context, messageID, name string) (string, error) {
	if name == "" {
		name = "Atlas"
	}
	if len(name) > maxThreadName {
		name = name[:maxThreadName]
	}
	var thread *discordgo.Channel
	err := p.retryOnRateLimit(ctx, func() error {
		var apiErr error
		thread, apiErr = p.sess.MessageThreadStartComplex(p.channelID, messageID, &discordgo.ThreadStart{
			Name:                name,
			AutoArchiveDuration: threadArchiveMinutes,
			Type:                discordgo.ChannelTypeGuildPublicThread,
		})
		return apiErr
	})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return thread.ID, nil
}

// buildMessageSend translates a mirror.Message into a Discord MessageSend.
func buildMessageSend(msg mirror.Message) *discordgo.MessageSend {
	data := &discordgo.MessageSend{
		Content: msg.Text,
	}
	for _, c := range msg.Cards {
		data.Embeds = append(data.Embeds, cardToEmbed(c))
	}
	return data
}

// cardToEmbed converts a Card to a Discord Embed.
func cardToEmbed(c mirror.Card) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       c.Title,
		Description: c.Body,
	}
	if c.Color != "" {
		embed.Color = parseHexColor(c.Color)
	}
	for _, f := range c.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Short,
		})
	}
	return embed
}

// parseHexColor converts a hex color string (e.g. "#36a64f") to an int.
func parseHexColor(hex string) int {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	var color int
	for _, c := range hex {
		color <<= 4
		switch {
		case c >= '0' && c <= '9':
			color |= int(c - '0')
		case c >= 'a' && c <= 'f':
			color |= int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			color |= int(c-'A') + 10
		}
	}
	return color
}

// retryOnRateLimit calls fn and retries with exponential backoff on Discord
// rate limit errors. It respects context cancellation.
func (p *Poster) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		restErr, ok := err.(*discordgo.RESTError)
		if !ok || restErr.Response == nil || restErr.Response.StatusCode != 429 {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * p.baseBackoff
		if wait > p.maxBackoff {
			wait = p.maxBackoff
		}
		log.Printf("discord: rate limited (attempt %d/%d), retrying in %v", attempt+1, maxRetries, wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
