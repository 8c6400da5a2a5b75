package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"socialclient/pkg/backend"
	"socialclient/pkg/ids"
	"socialclient/pkg/model"
	"socialclient/pkg/pagination"
)

type Conversations struct {
	store backend.Store
	users *Users
	ids   *ids.Generator
	now   func() time.Time
}

// Page lists the conversations the viewer is still part of, most recently
// updated first. Each conversation carries only its latest message.
func (c *Conversations) Page(ctx context.Context, viewerID string, page int, size int) (pagination.Page[model.Conversation], error) {
	if err := required(viewerID); err != nil {
		return pagination.Page[model.Conversation]{}, backend.Label("getConversations", err)
	}
	memberships, err := c.store.Select(ctx, backend.From(TableConversationTarget).
		Filter(backend.Eq("account_id", viewerID), backend.IsNull("deleted_at")))
	if err != nil {
		return pagination.Page[model.Conversation]{}, backend.Label("getConversations", err)
	}
	conversationIDs := column(memberships, "conversation_id")
	if len(conversationIDs) == 0 {
		return pagination.Page[model.Conversation]{Cursor: page}, nil
	}
	q := backend.From(TableConversation).
		Filter(backend.In("id", conversationIDs)).
		OrderBy(backend.Desc("updated_at"), backend.Desc("id"))
	rows, total, err := c.store.FetchPage(ctx, q, page, size)
	if err != nil {
		return pagination.Page[model.Conversation]{}, backend.Label("getConversations", err)
	}
	conversations, err := c.hydrate(ctx, viewerID, rows, false)
	if err != nil {
		return pagination.Page[model.Conversation]{}, backend.Label("getConversations", err)
	}
	return pagination.Page[model.Conversation]{Data: conversations, Count: total, Cursor: page}, nil
}

// Get returns a conversation with its full message history, oldest first.
func (c *Conversations) Get(ctx context.Context, viewerID string, id string) (model.Conversation, error) {
	if err := required(id); err != nil {
		return model.Conversation{}, backend.Label("getConversation", err)
	}
	rows, err := c.store.Select(ctx, backend.From(TableConversation).Filter(backend.Eq("id", id)))
	if err != nil {
		return model.Conversation{}, backend.Label("getConversation", err)
	}
	if len(rows) == 0 {
		return model.Conversation{}, backend.Label("getConversation", fmt.Errorf("conversation %s: %w", id, backend.ErrNotFound))
	}
	conversations, err := c.hydrate(ctx, viewerID, rows, true)
	if err != nil {
		return model.Conversation{}, backend.Label("getConversation", err)
	}
	return conversations[0], nil
}

// Create opens a conversation between originID and recipientIDs and posts
// its first message. The origin account is always a target.
func (c *Conversations) Create(ctx context.Context, originID string, recipientIDs []string, text string) (model.Conversation, error) {
	if err := required(originID); err != nil {
		return model.Conversation{}, backend.Label("createConversation", err)
	}
	if len(recipientIDs) == 0 {
		return model.Conversation{}, backend.Label("createConversation", fmt.Errorf("no recipients: %w", backend.ErrMissingIdentifier))
	}
	id, err := c.ids.Next()
	if err != nil {
		return model.Conversation{}, backend.Label("createConversation", err)
	}
	now := c.now()
	row := backend.Row{
		"id":                id,
		"origin_account_id": originID,
		"created_at":        now,
		"updated_at":        now,
	}
	if err := c.store.Insert(ctx, TableConversation, row); err != nil {
		return model.Conversation{}, backend.Label("createConversation", err)
	}

	members := append([]string{originID}, recipientIDs...)
	seen := make(map[string]struct{}, len(members))
	targets := make([]backend.Row, 0, len(members))
	for _, accountID := range members {
		if _, dup := seen[accountID]; dup || accountID == "" {
			continue
		}
		seen[accountID] = struct{}{}
		var lastRead any
		if accountID == originID {
			lastRead = now
		}
		targets = append(targets, backend.Row{
			"id":              ids.UUID(),
			"conversation_id": id,
			"account_id":      accountID,
			"last_read":       lastRead,
			"deleted_at":      nil,
		})
	}
	if err := c.store.Insert(ctx, TableConversationTarget, targets...); err != nil {
		return model.Conversation{}, backend.Label("createConversationTargets", err)
	}
	if strings.TrimSpace(text) != "" {
		if _, err := c.Send(ctx, id, originID, text); err != nil {
			return model.Conversation{}, err
		}
	}
	return c.Get(ctx, originID, id)
}

// Send appends a message, bumps the conversation and marks it read for the
// sender.
func (c *Conversations) Send(ctx context.Context, conversationID string, accountID string, text string) (model.Message, error) {
	text = strings.TrimSpace(text)
	if err := required(conversationID, accountID); err != nil {
		return model.Message{}, backend.Label("sendMessage", err)
	}
	id, err := c.ids.Next()
	if err != nil {
		return model.Message{}, backend.Label("sendMessage", err)
	}
	now := c.now()
	msg := model.Message{
		ID:             id,
		ConversationID: conversationID,
		AccountID:      accountID,
		Text:           text,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	row := backend.Row{
		"id":              msg.ID,
		"conversation_id": msg.ConversationID,
		"account_id":      msg.AccountID,
		"text":            msg.Text,
		"created_at":      msg.CreatedAt,
		"updated_at":      msg.UpdatedAt,
	}
	if err := c.store.Insert(ctx, TableConversationMessage, row); err != nil {
		return model.Message{}, backend.Label("sendMessage", err)
	}
	if err := c.store.Update(ctx, TableConversation, backend.Row{"updated_at": now}, backend.Eq("id", conversationID)); err != nil {
		return model.Message{}, backend.Label("sendMessage", err)
	}
	if err := c.markRead(ctx, conversationID, accountID, now); err != nil {
		return model.Message{}, backend.Label("sendMessage", err)
	}
	summaries, err := c.users.Summaries(ctx, []string{accountID})
	if err != nil {
		return model.Message{}, backend.Label("sendMessage", err)
	}
	msg.Sender = summaries[accountID]
	return msg, nil
}

func (c *Conversations) MarkRead(ctx context.Context, conversationID string, accountID string) error {
	if err := required(conversationID, accountID); err != nil {
		return backend.Label("markRead", err)
	}
	return backend.Label("markRead", c.markRead(ctx, conversationID, accountID, c.now()))
}

func (c *Conversations) markRead(ctx context.Context, conversationID string, accountID string, at time.Time) error {
	return c.store.Update(ctx, TableConversationTarget, backend.Row{"last_read": at},
		backend.Eq("conversation_id", conversationID), backend.Eq("account_id", accountID))
}

// Leave removes accountID from a conversation. The last active member
// leaving deletes the conversation with its targets and messages. Callers
// that are not active members get ErrNotFound.
func (c *Conversations) Leave(ctx context.Context, conversationID string, accountID string) error {
	if err := required(conversationID, accountID); err != nil {
		return backend.Label("leaveConversation", err)
	}
	member, err := count(ctx, c.store, TableConversationTarget,
		backend.Eq("conversation_id", conversationID), backend.Eq("account_id", accountID), backend.IsNull("deleted_at"))
	if err != nil {
		return backend.Label("leaveConversation", err)
	}
	if member == 0 {
		return backend.Label("leaveConversation", fmt.Errorf("member %s of conversation %s: %w", accountID, conversationID, backend.ErrNotFound))
	}
	active, err := count(ctx, c.store, TableConversationTarget,
		backend.Eq("conversation_id", conversationID), backend.IsNull("deleted_at"))
	if err != nil {
		return backend.Label("leaveConversation", err)
	}
	if active <= 1 {
		if err := c.store.Delete(ctx, TableConversationMessage, backend.Eq("conversation_id", conversationID)); err != nil {
			return backend.Label("leaveConversation", err)
		}
		if err := c.store.Delete(ctx, TableConversationTarget, backend.Eq("conversation_id", conversationID)); err != nil {
			return backend.Label("leaveConversation", err)
		}
		return backend.Label("leaveConversation", c.store.Delete(ctx, TableConversation, backend.Eq("id", conversationID)))
	}
	return backend.Label("leaveConversation", c.store.Update(ctx, TableConversationTarget,
		backend.Row{"deleted_at": c.now()},
		backend.Eq("conversation_id", conversationID), backend.Eq("account_id", accountID)))
}

func (c *Conversations) DeleteMessage(ctx context.Context, messageID string) error {
	if err := required(messageID); err != nil {
		return backend.Label("deleteMessage", err)
	}
	return backend.Label("deleteMessage", c.store.Delete(ctx, TableConversationMessage, backend.Eq("id", messageID)))
}

// Watch calls fn for every message change of a conversation. Changes whose
// row does not name a conversation, such as deletes from drivers that only
// publish the filter, are delivered too.
func (c *Conversations) Watch(ctx context.Context, conversationID string, fn func(backend.Change)) (backend.Unsubscribe, error) {
	if err := required(conversationID); err != nil {
		return nil, backend.Label("watchConversation", err)
	}
	unsubscribe, err := c.store.Subscribe(ctx, TableConversationMessage, func(change backend.Change) {
		if id, ok := change.Row["conversation_id"].(string); ok && id != conversationID {
			return
		}
		fn(change)
	})
	if err != nil {
		return nil, backend.Label("watchConversation", err)
	}
	return unsubscribe, nil
}

func (c *Conversations) hydrate(ctx context.Context, viewerID string, rows []backend.Row, history bool) ([]model.Conversation, error) {
	conversations, err := decodeAll[model.Conversation](rows)
	if err != nil {
		return nil, err
	}
	conversationIDs := column(rows, "id")
	targetRows, err := c.store.Select(ctx, backend.From(TableConversationTarget).
		Filter(backend.In("conversation_id", conversationIDs)))
	if err != nil {
		return nil, err
	}
	targets, err := decodeAll[model.ConversationTarget](targetRows)
	if err != nil {
		return nil, err
	}

	messages := make(map[string][]model.Message)
	for _, id := range conversationIDs {
		q := backend.From(TableConversationMessage).Filter(backend.Eq("conversation_id", id))
		var msgRows []backend.Row
		if history {
			msgRows, err = c.store.Select(ctx, q.OrderBy(backend.Asc("created_at"), backend.Asc("id")))
		} else {
			msgRows, _, err = c.store.FetchPage(ctx, q.OrderBy(backend.Desc("created_at"), backend.Desc("id")), 1, 1)
		}
		if err != nil {
			return nil, err
		}
		if messages[id], err = decodeAll[model.Message](msgRows); err != nil {
			return nil, err
		}
	}

	accountIDs := column(targetRows, "account_id")
	summaries, err := c.users.Summaries(ctx, accountIDs)
	if err != nil {
		return nil, err
	}
	byConversation := make(map[string][]model.ConversationTarget)
	for _, t := range targets {
		t.Account = summaries[t.AccountID]
		byConversation[t.ConversationID] = append(byConversation[t.ConversationID], t)
	}
	for i := range conversations {
		conv := &conversations[i]
		conv.Targets = byConversation[conv.ID]
		for _, t := range conv.Targets {
			if t.AccountID == viewerID {
				conv.LastRead = t.LastRead
			}
		}
		conv.Messages = messages[conv.ID]
		for j := range conv.Messages {
			conv.Messages[j].Sender = summaries[conv.Messages[j].AccountID]
		}
	}
	return conversations, nil
}
