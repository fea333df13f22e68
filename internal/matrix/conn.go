// ABOUTME: Conn streams room messages from Matrix sync and sends word replies.
// ABOUTME: Events from before the connection started are never delivered.

package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/wordchain-gateway/internal/game"
	"github.com/2389/wordchain-gateway/internal/player"
)

// Conn is an authenticated Matrix client acting for one account.
type Conn struct {
	client *mautrix.Client
	self   game.Self
	crypto *cryptoStore
	logger *slog.Logger
}

var _ player.Conn = (*Conn)(nil)

// Self returns the account's ID, localpart and display name.
func (c *Conn) Self(ctx context.Context) (game.Self, error) {
	return c.self, nil
}

// Listen syncs until ctx is canceled or the sync loop fails.
func (c *Conn) Listen(ctx context.Context, deliver func(player.Message)) error {
	syncer, ok := c.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", c.client.Syncer)
	}
	syncer.OnSync(c.client.DontProcessOldEvents)
	syncer.OnEventType(event.EventMessage, func(ctx context.Context, evt *event.Event) {
		if msg, ok := toMessage(evt); ok {
			deliver(msg)
		}
	})

	c.logger.Info("syncing")
	err := c.client.SyncWithContext(ctx)
	if ctx.Err() != nil {
		return nil
	}
	if err == nil {
		return errors.New("sync stopped")
	}
	if isAuthError(err) {
		return fmt.Errorf("%w: %w", player.ErrCredentialRejected, err)
	}
	return fmt.Errorf("matrix sync failed: %w", err)
}

// Send posts text as a plain m.text message.
func (c *Conn) Send(ctx context.Context, chatID, text string) error {
	_, err := c.client.SendText(ctx, id.RoomID(chatID), text)
	if err != nil {
		return fmt.Errorf("sending to %s: %w", chatID, err)
	}
	return nil
}

// Close stops syncing and releases the encryption store.
func (c *Conn) Close() error {
	c.client.StopSync()
	if c.crypto != nil {
		return c.crypto.Close()
	}
	return nil
}

// toMessage converts text and notice events; everything else is dropped.
func toMessage(evt *event.Event) (player.Message, bool) {
	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok {
		return player.Message{}, false
	}
	if content.MsgType != event.MsgText && content.MsgType != event.MsgNotice {
		return player.Message{}, false
	}
	return player.Message{
		ChatID:  evt.RoomID.String(),
		Sender:  evt.Sender.String(),
		Text:    content.Body,
		EventID: evt.ID.String(),
	}, true
}

// selfFor lists the name variants a host may address this account by.
func selfFor(userID id.UserID, displayName string) game.Self {
	self := game.Self{ID: userID.String()}
	if displayName != "" {
		self.Names = append(self.Names, displayName)
	}
	if local := localpart(userID); local != "" {
		self.Names = append(self.Names, local)
	}
	return self
}
