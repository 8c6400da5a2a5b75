package gateway

import (
	"net/http"
	"time"

	"socialclient/pkg/client"
	"socialclient/pkg/model"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const LIVE_WRITE_TIMEOUT = 10 * time.Second

func (h *handler) conversations(w http.ResponseWriter, r *http.Request, s *client.Session) {
	ctx := r.Context()
	conversations, err := s.Conversations(ctx)
	if err == nil && flag(r, "more") {
		if _, err = s.NextConversationsPage(ctx); err == nil {
			conversations, err = s.Conversations(ctx)
		}
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page(conversations, s.ConversationsEnd()))
}

func (h *handler) getConversation(w http.ResponseWriter, r *http.Request, s *client.Session) {
	conv, err := s.Conversation(r.Context(), mux.Vars(r)["conversationId"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

type messageRequest struct {
	Text string `json:"text"`
}

// startConversation opens a conversation with the recipients chosen
// through /recipients.
func (h *handler) startConversation(w http.ResponseWriter, r *http.Request, s *client.Session) {
	var req messageRequest
	if err := readJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	conv, err := s.StartConversation(r.Context(), req.Text)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request, s *client.Session) {
	var req messageRequest
	if err := readJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	sent, err := s.SendMessage(r.Context(), mux.Vars(r)["conversationId"], req.Text)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if sent.ID == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, sent)
}

func (h *handler) markRead(w http.ResponseWriter, r *http.Request, s *client.Session) {
	if err := s.MarkRead(r.Context(), mux.Vars(r)["conversationId"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) leaveConversation(w http.ResponseWriter, r *http.Request, s *client.Session) {
	if err := s.LeaveConversation(r.Context(), mux.Vars(r)["conversationId"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) deleteMessage(w http.ResponseWriter, r *http.Request, s *client.Session) {
	vars := mux.Vars(r)
	if err := s.DeleteMessage(r.Context(), vars["conversationId"], vars["messageId"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// live streams an open conversation over a websocket. The current state is
// sent first, then the conversation again after every message change.
// Updates the client is too slow to take are collapsed into the latest.
func (h *handler) live(w http.ResponseWriter, r *http.Request, s *client.Session) {
	ctx := r.Context()
	conversationID := mux.Vars(r)["conversationId"]
	conv, err := s.Conversation(ctx, conversationID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("error upgrading websocket", "msg", err.Error())
		return
	}
	defer conn.Close()

	updates := make(chan model.Conversation, 1)
	unwatch, err := s.WatchConversation(ctx, conversationID, func(conv model.Conversation) {
		for {
			select {
			case updates <- conv:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	if err != nil {
		conn.WriteJSON(errorResponse{Error: err.Error()})
		return
	}
	defer unwatch()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("websocket closed", "conversation_id", conversationID, "msg", err.Error())
				}
				return
			}
		}
	}()

	write := func(conv model.Conversation) bool {
		conn.SetWriteDeadline(time.Now().Add(LIVE_WRITE_TIMEOUT))
		return conn.WriteJSON(conv) == nil
	}
	if !write(conv) {
		return
	}
	for {
		select {
		case <-closed:
			return
		case conv := <-updates:
			if !write(conv) {
				return
			}
		}
	}
}
