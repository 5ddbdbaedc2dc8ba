package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/app/repositories"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/message"
)

// MessageCollector buffers group messages received while the fetch mode is
// connected and stores the ones newer than what the repository already holds.
type MessageCollector struct {
	repo repositories.MessageRepository
	log  waLog.Logger

	mu      sync.Mutex
	pending map[string][]message.Message
}

func NewMessageCollector(repo repositories.MessageRepository, log waLog.Logger) *MessageCollector {
	if log == nil {
		log = waLog.Noop
	}
	return &MessageCollector{repo: repo, log: log, pending: make(map[string][]message.Message)}
}

// HandleEvent is registered as a whatsmeow event handler.
func (c *MessageCollector) HandleEvent(evt any) {
	if msg, ok := evt.(*events.Message); ok {
		c.HandleMessage(msg)
	}
}

func (c *MessageCollector) HandleMessage(evt *events.Message) {
	if evt == nil || !evt.Info.IsGroup {
		return
	}
	evt.UnwrapRaw()
	if evt.Message == nil {
		evt.Message = evt.RawMessage
	}
	if evt.Message == nil {
		return
	}

	sender := evt.Info.Sender
	if sender.Server == types.HiddenUserServer && !evt.Info.SenderAlt.IsEmpty() {
		sender = evt.Info.SenderAlt
	}
	var senderPhone string
	if sender.Server == types.DefaultUserServer {
		senderPhone = sender.User
	}

	msgType := detectMessageType(evt.Message)
	c.log.Debugf("collect chat=%s id=%s type=%s", evt.Info.Chat, evt.Info.ID, msgType)
	c.Collect(message.Message{
		ID:          evt.Info.ID,
		GroupID:     evt.Info.Chat.String(),
		SenderPhone: senderPhone,
		Timestamp:   evt.Info.Timestamp,
		Text:        messageText(evt.Message),
		Type:        msgType,
	})
}

func (c *MessageCollector) Collect(m message.Message) {
	if m.ID == "" || m.GroupID == "" {
		return
	}
	c.mu.Lock()
	c.pending[m.GroupID] = append(c.pending[m.GroupID], m)
	c.mu.Unlock()
}

// Flush writes buffered messages newer than each group's last stored timestamp.
func (c *MessageCollector) Flush(ctx context.Context) (int, error) {
	c.mu.Lock()
	batches := c.pending
	c.pending = make(map[string][]message.Message)
	c.mu.Unlock()

	groups := make([]string, 0, len(batches))
	for id := range batches {
		groups = append(groups, id)
	}
	sort.Strings(groups)

	total := 0
	for _, groupID := range groups {
		last, err := c.repo.LastTimestamp(ctx, groupID)
		if err != nil {
			return total, fmt.Errorf("last timestamp for %s: %w", groupID, err)
		}
		fresh := make([]message.Message, 0, len(batches[groupID]))
		for _, m := range batches[groupID] {
			if m.Timestamp.After(last) {
				fresh = append(fresh, m)
			}
		}
		if len(fresh) == 0 {
			continue
		}
		n, err := c.repo.InsertBatch(ctx, fresh)
		if err != nil {
			return total, fmt.Errorf("store messages for %s: %w", groupID, err)
		}
		total += n
		c.log.Infof("stored %d new messages for %s", n, groupID)
	}
	return total, nil
}

func messageText(msg *waE2E.Message) string {
	switch {
	case msg.GetConversation() != "":
		return msg.GetConversation()
	case msg.GetExtendedTextMessage() != nil:
		return msg.GetExtendedTextMessage().GetText()
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetCaption()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetCaption()
	default:
		return ""
	}
}

func detectMessageType(msg *waE2E.Message) string {
	if msg == nil {
		return "unknown"
	}
	switch {
	case msg.GetConversation() != "":
		return "conversation"
	case msg.GetExtendedTextMessage() != nil:
		return "extendedTextMessage"
	case msg.GetImageMessage() != nil:
		return "imageMessage"
	case msg.GetVideoMessage() != nil:
		return "videoMessage"
	case msg.GetAudioMessage() != nil:
		return "audioMessage"
	case msg.GetDocumentMessage() != nil:
		return "documentMessage"
	case msg.GetStickerMessage() != nil:
		return "stickerMessage"
	case msg.GetContactMessage() != nil:
		return "contactMessage"
	case msg.GetLocationMessage() != nil:
		return "locationMessage"
	case msg.GetReactionMessage() != nil:
		return "reactionMessage"
	default:
		return "unknown"
	}
}
