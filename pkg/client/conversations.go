package client

import (
	"context"
	"fmt"
	"strings"

	"socialclient/pkg/backend"
	"socialclient/pkg/model"
	"socialclient/pkg/mutation"
	"socialclient/pkg/querycache"
	"socialclient/pkg/repository"
)

func (s *Session) Conversations(ctx context.Context) ([]model.Conversation, error) {
	s.logger.Debug("entering Conversations")
	conversations, err := s.conversations.Load(ctx)
	return conversations, s.report(ctx, "getConversations", err)
}

func (s *Session) NextConversationsPage(ctx context.Context) (bool, error) {
	fetched, err := s.conversations.LoadNext(ctx)
	return fetched, s.report(ctx, "getConversations", err)
}

func (s *Session) ConversationsEnd() bool { return s.conversations.End() }

// Conversation returns an open conversation with its message history.
func (s *Session) Conversation(ctx context.Context, id string) (model.Conversation, error) {
	s.logger.Debug("entering Conversation", "conversation_id", id)
	if conv, ok := querycache.Lookup[model.Conversation](s.cache, conversationKey(id)); ok {
		return conv, nil
	}
	return s.fetchConversation(ctx, id)
}

func (s *Session) fetchConversation(ctx context.Context, id string) (model.Conversation, error) {
	conv, err := s.repo.Conversations.Get(ctx, s.viewerID, id)
	if err != nil {
		return model.Conversation{}, s.report(ctx, "getConversation", err)
	}
	s.cache.Set(conversationKey(id), conv)
	return conv, nil
}

// StartConversation opens a conversation with the chosen recipients and
// sends its first message.
func (s *Session) StartConversation(ctx context.Context, text string) (model.Conversation, error) {
	recipients := s.state.Recipients()
	s.logger.Debug("entering StartConversation", "num_recipients", len(recipients))
	if len(recipients) == 0 {
		return model.Conversation{}, s.report(ctx, "createConversation",
			backend.Label("createConversation", fmt.Errorf("no recipients chosen: %w", backend.ErrMissingIdentifier)))
	}
	ids := make([]string, 0, len(recipients))
	for _, r := range recipients {
		ids = append(ids, r.ID)
	}
	var created model.Conversation
	err := s.engine.Run(ctx, mutation.Mutation{
		Label:    "createConversation",
		AfterAck: true,
		Remote: func(ctx context.Context) error {
			var err error
			created, err = s.repo.Conversations.Create(ctx, s.viewerID, ids, text)
			return err
		},
		Patch: mutation.Funcs{OnApply: func(c *querycache.Cache) {
			conv := created
			querycache.Modify(c, keyConversations, func(pages conversationPages) conversationPages {
				return pages.Prepend(conv)
			})
			c.Set(conversationKey(conv.ID), conv)
		}},
	})
	if err != nil {
		return model.Conversation{}, err
	}
	s.state.ClearRecipients()
	return created, nil
}

// SendMessage posts a message to a conversation. Empty text is ignored.
func (s *Session) SendMessage(ctx context.Context, conversationID string, text string) (model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Message{}, nil
	}
	s.logger.Debug("entering SendMessage", "conversation_id", conversationID)
	var sent model.Message
	err := s.engine.Run(ctx, mutation.Mutation{
		Label:    "sendMessage",
		Entity:   conversationEntity(conversationID),
		AfterAck: true,
		Remote: func(ctx context.Context) error {
			var err error
			sent, err = s.repo.Conversations.Send(ctx, conversationID, s.viewerID, text)
			return err
		},
		Patch: messageAdded(&sent),
	})
	return sent, err
}

func (s *Session) MarkRead(ctx context.Context, conversationID string) error {
	s.logger.Debug("entering MarkRead", "conversation_id", conversationID)
	return s.engine.Run(ctx, mutation.Mutation{
		Label:  "markRead",
		Entity: conversationEntity(conversationID),
		Remote: func(ctx context.Context) error {
			return s.repo.Conversations.MarkRead(ctx, conversationID, s.viewerID)
		},
		Patch: conversationRead(conversationID, s.now()),
	})
}

// LeaveConversation removes the viewer from a conversation.
func (s *Session) LeaveConversation(ctx context.Context, conversationID string) error {
	s.logger.Debug("entering LeaveConversation", "conversation_id", conversationID)
	err := s.engine.Run(ctx, mutation.Mutation{
		Label:  "leaveConversation",
		Entity: conversationEntity(conversationID),
		Remote: func(ctx context.Context) error {
			return s.repo.Conversations.Leave(ctx, conversationID, s.viewerID)
		},
		Patch: mutation.Patches{
			removal(keyConversations, func(c model.Conversation) bool { return c.ID == conversationID }),
			drop(conversationKey(conversationID)),
		},
	})
	if err != nil {
		return err
	}
	s.unwatch(conversationID)
	return nil
}

func (s *Session) DeleteMessage(ctx context.Context, conversationID string, messageID string) error {
	s.logger.Debug("entering DeleteMessage", "conversation_id", conversationID, "message_id", messageID)
	return s.engine.Run(ctx, mutation.Mutation{
		Label:  "deleteMessage",
		Entity: conversationEntity(conversationID),
		Remote: func(ctx context.Context) error { return s.repo.Conversations.DeleteMessage(ctx, messageID) },
		Patch:  messageRemoved(conversationID, messageID),
	})
}

// WatchConversation keeps an open conversation live: every message change
// refetches it, marks it read and hands it to onChange. Watching a
// conversation twice replaces the previous watch.
func (s *Session) WatchConversation(ctx context.Context, conversationID string, onChange func(model.Conversation)) (backend.Unsubscribe, error) {
	s.logger.Debug("entering WatchConversation", "conversation_id", conversationID)
	s.unwatch(conversationID)
	unsubscribe, err := s.repo.Conversations.Watch(ctx, conversationID, func(change backend.Change) {
		bg := context.Background()
		conv, err := s.fetchConversation(bg, conversationID)
		if err != nil {
			return
		}
		if err := s.repo.Conversations.MarkRead(bg, conversationID, s.viewerID); err != nil {
			s.logger.Error("error marking conversation read", "conversation_id", conversationID, "msg", err.Error())
		} else {
			conversationRead(conversationID, s.now()).Apply(s.cache)
			conv, _ = querycache.Lookup[model.Conversation](s.cache, conversationKey(conversationID))
		}
		if onChange != nil {
			onChange(conv)
		}
	})
	if err != nil {
		return nil, s.report(ctx, "watchConversation", err)
	}
	s.mu.Lock()
	s.watches[conversationID] = unsubscribe
	s.mu.Unlock()
	return func() { s.unwatch(conversationID) }, nil
}

func (s *Session) unwatch(conversationID string) {
	s.mu.Lock()
	unsubscribe, ok := s.watches[conversationID]
	delete(s.watches, conversationID)
	s.mu.Unlock()
	if ok {
		unsubscribe()
	}
}

// AddRecipient adds an account to the recipients of the next conversation.
func (s *Session) AddRecipient(ctx context.Context, userID string) error {
	if userID == s.viewerID {
		return nil
	}
	summaries, err := s.repo.Users.Summaries(ctx, []string{userID})
	if err != nil {
		return s.report(ctx, "addRecipient", err)
	}
	summary, ok := summaries[userID]
	if !ok {
		return s.report(ctx, "addRecipient", repository.ErrUserNotFound)
	}
	s.state.AddRecipient(summary)
	return nil
}

func (s *Session) RemoveRecipient(userID string) {
	s.state.RemoveRecipient(userID)
}

func (s *Session) Recipients() []model.AccountSummary {
	return s.state.Recipients()
}
