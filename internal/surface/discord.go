// Package surface connects external chat surfaces to the conversation
// engine. Discord is the only surface besides HTTP: messages in the
// configured channel (or DMs) become turns, replies go back in place.
package surface

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/eduplay1216-alt/myjarvis/internal/conversation"
	"github.com/eduplay1216-alt/myjarvis/internal/logging"
)

// turnTimeout bounds one Discord-initiated turn end to end.
const turnTimeout = 3 * time.Minute

// TurnHandler runs one conversation turn. Satisfied by the engine.
type TurnHandler interface {
	HandleTurn(ctx context.Context, owner, userText string) (string, error)
}

// DiscordConfig holds Discord connection settings.
type DiscordConfig struct {
	Token     string
	ChannelID string // restrict to one channel; empty accepts any
	OwnerID   string // owner identity all turns run as
}

// Discord relays channel messages into the engine.
type Discord struct {
	session   *discordgo.Session
	channelID string
	ownerID   string
	botID     string
	engine    TurnHandler
}

// NewDiscord creates the Discord surface without connecting.
func NewDiscord(cfg DiscordConfig, engine TurnHandler) (*Discord, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create Discord session: %w", err)
	}

	d := &Discord{
		session:   session,
		channelID: cfg.ChannelID,
		ownerID:   cfg.OwnerID,
		engine:    engine,
	}

	session.AddHandler(d.handleMessage)
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	return d, nil
}

// Start connects to Discord and begins listening.
func (d *Discord) Start() error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("open Discord connection: %w", err)
	}
	d.botID = d.session.State.User.ID
	logging.Info("discord", "connected as %s", d.session.State.User.Username)
	return nil
}

// Stop disconnects from Discord.
func (d *Discord) Stop() error {
	return d.session.Close()
}

// handleMessage relays one incoming message through the engine and
// sends the reply back to the same channel.
func (d *Discord) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == d.botID {
		return
	}
	if d.channelID != "" && m.ChannelID != d.channelID {
		return
	}
	if m.Content == "" {
		return
	}

	logging.Debug("discord", "message from %s: %s", m.Author.Username, logging.Truncate(m.Content, 80))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
		defer cancel()

		reply, err := d.engine.HandleTurn(ctx, d.ownerID, m.Content)
		if errors.Is(err, conversation.ErrBusy) {
			d.send(m.ChannelID, "Um momento, Senhor. Ainda estou processando a mensagem anterior.")
			return
		}
		if err != nil {
			logging.Warn("discord", "turn failed: %v", err)
			// reply already carries the apology text
		}
		if reply != "" {
			d.send(m.ChannelID, reply)
		}
	}()
}

func (d *Discord) send(channelID, text string) {
	// Discord caps messages at 2000 characters.
	for len(text) > 0 {
		chunk := text
		if len(chunk) > 2000 {
			chunk = chunk[:2000]
		}
		text = text[len(chunk):]
		if _, err := d.session.ChannelMessageSend(channelID, chunk); err != nil {
			logging.Warn("discord", "send message: %v", err)
			return
		}
	}
}
