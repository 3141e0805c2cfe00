package chats

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"nutrichat/db"
	"nutrichat/foodapi"
	"nutrichat/models"
	"nutrichat/mq"
	"nutrichat/quantities"
	"nutrichat/search"
	"nutrichat/selection"
	"nutrichat/stream"
)

var ErrStreamInFlight = errors.New("chats: a meal-selection stream is already active")

// Session owns one chat's meal-selection state: the controller, the
// quantity store, the single in-flight stream and the UI connections.
// Sending a new chat message is disabled while a stream is active, so
// streams are serialized at one per session.
type Session struct {
	ID     string
	UserID string

	Ctrl  *selection.Controller
	Store *quantities.Store

	api       *foodapi.Client
	dropdown  *search.Throttle
	typeahead *search.Debouncer

	mu           sync.Mutex
	streaming    bool
	streamCancel context.CancelFunc
}

// Registry of live sessions, keyed by session id.
var sessions = struct {
	sync.RWMutex
	m map[string]*Session
}{m: make(map[string]*Session)}

func NewSession(userID string, api *foodapi.Client) *Session {
	store := quantities.NewStore()
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Store:     store,
		Ctrl:      selection.NewController(api, store),
		api:       api,
		dropdown:  search.NewDropdownThrottle(),
		typeahead: search.NewDebouncer(search.DebounceQuiet),
	}
	s.Ctrl.SetOnChange(func() { s.pushState() })
	s.Ctrl.SetOnError(func(err error) {
		log.Printf("session %s: %v", s.ID, err)
		s.pushToast("Something went wrong. Please try again.", "", 0)
	})
	s.Ctrl.SetOnCancelled(func(messageID string) {
		s.deleteMessage(messageID)
		if err := mq.Emit("selection_cancelled", mq.Event{SessionID: s.ID, MessageID: messageID, Action: "cancelled"}); err != nil {
			log.Printf("session %s: %v", s.ID, err)
		}
	})

	sessions.Lock()
	sessions.m[s.ID] = s
	sessions.Unlock()
	return s
}

func GetSession(id string) *Session {
	sessions.RLock()
	defer sessions.RUnlock()
	return sessions.m[id]
}

func CloseSession(id string) {
	sessions.Lock()
	s := sessions.m[id]
	delete(sessions.m, id)
	sessions.Unlock()
	if s != nil {
		s.CancelStream()
		s.typeahead.Stop()
	}
}

// Streaming reports whether a stream is in flight (the UI disables the
// send box while true).
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// SendMessage starts a meal-parsing stream for the user's text. The
// pending message is registered immediately; chunks mutate it in place as
// they arrive.
func (s *Session) SendMessage(text string) (string, error) {
	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return "", ErrStreamInFlight
	}
	s.streaming = true
	ctx, cancel := context.WithCancel(context.Background())
	s.streamCancel = cancel
	s.mu.Unlock()

	msg := &models.MealSelectionMessage{
		ID:        uuid.NewString(),
		SessionID: s.ID,
		Role:      models.RolePendingFoodSelection,
		IsPending: true,
		IsPartial: true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.Ctrl.AddMessage(msg)

	go s.runStream(ctx, cancel, text, msg)
	return msg.ID, nil
}

func (s *Session) runStream(ctx context.Context, cancel context.CancelFunc, text string, msg *models.MealSelectionMessage) {
	defer func() {
		cancel()
		s.mu.Lock()
		s.streaming = false
		s.streamCancel = nil
		s.mu.Unlock()
	}()

	body, err := s.api.ParseMealStream(ctx, text, s.ID, msg.ID)
	if err != nil {
		log.Printf("session %s: starting stream: %v", s.ID, err)
		s.pushToast("Could not reach the nutrition service. Please try again.", "", 0)
		return
	}
	defer body.Close()

	err = stream.Read(ctx, body, s.Ctrl.ApplyChunk)
	switch {
	case err == nil:
		msg.IsPartial = false
		s.persistMessage(msg)
		s.pushState()
	case errors.Is(err, stream.ErrRestricted):
		s.pushEvent("restricted", nil)
	case errors.Is(err, context.Canceled):
		// Stream cancelled locally; the message was never persisted
		// server-side so closing the transport was sufficient cleanup.
	default:
		log.Printf("session %s: stream failed: %v", s.ID, err)
		s.pushToast("Something went wrong while analyzing your meal.", "", 0)
	}
}

// CancelStream closes the transport handle, stopping chunk delivery.
func (s *Session) CancelStream() {
	s.mu.Lock()
	cancel := s.streamCancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Confirm submits the message's selections and persists the completed
// message.
func (s *Session) Confirm(ctx context.Context, messageID string) error {
	if err := s.Ctrl.Confirm(ctx, messageID); err != nil {
		return err
	}
	if view, err := s.Ctrl.MessageView(messageID); err == nil {
		s.persistMessage(&view.Message)
	}
	if err := mq.Emit("selection_confirmed", mq.Event{SessionID: s.ID, MessageID: messageID, Action: "confirmed"}); err != nil {
		log.Printf("session %s: %v", s.ID, err)
	}
	return nil
}

// Cancel removes the message with an undo window and shows the undo toast.
func (s *Session) Cancel(messageID string) error {
	if err := s.Ctrl.Cancel(messageID); err != nil {
		return err
	}
	s.pushToast("Meal removed.", messageID, selection.UndoWindow)
	return nil
}

// RemoveFood and RemoveComponent mirror Cancel's undo pattern for
// sub-items; removal is local only.
func (s *Session) RemoveFood(messageID, foodID string) error {
	if err := s.Ctrl.RemoveFood(messageID, foodID); err != nil {
		return err
	}
	s.pushToast("Food removed.", foodID, selection.UndoWindow)
	return nil
}

func (s *Session) RemoveComponent(messageID, foodID, componentID string) error {
	if err := s.Ctrl.RemoveComponent(messageID, foodID, componentID); err != nil {
		return err
	}
	s.pushToast("Item removed.", componentID, selection.UndoWindow)
	return nil
}

// Undo reverses a pending removal before its window elapses.
func (s *Session) Undo(itemID string) bool {
	return s.Ctrl.Undo(itemID)
}

// PreviewPhrase schedules a search-as-you-type lookup for a phrase being
// edited. Rapid keystrokes coalesce into one fetch after the quiet period;
// results arrive on the session's websocket, keyed by component.
func (s *Session) PreviewPhrase(phrase, componentID string) {
	s.typeahead.Trigger(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		matches, err := search.Alternatives(ctx, s.api, phrase, componentID)
		if err != nil {
			log.Printf("session %s: previewing phrase: %v", s.ID, err)
			return
		}
		s.pushEvent("phrase_preview", map[string]interface{}{
			"component_id": componentID,
			"phrase":       phrase,
			"matches":      matches,
		})
	})
}

// Alternatives fetches dropdown alternatives for a component, throttled so
// rapid re-opens don't refetch.
func (s *Session) Alternatives(ctx context.Context, originalPhrase, componentID string) ([]models.Match, bool, error) {
	if !s.dropdown.Allow() {
		return nil, false, nil
	}
	alts, err := search.Alternatives(ctx, s.api, originalPhrase, componentID)
	if err != nil {
		return nil, true, err
	}
	return alts, true, nil
}

// LoadHistory restores this session's persisted messages, dropping any the
// session already cancelled.
func (s *Session) LoadHistory(ctx context.Context) error {
	cursor, err := db.MessagesCollection.Find(ctx, bson.M{"sessionId": s.ID}, db.OptionsFindLatest(50))
	if err != nil {
		return fmt.Errorf("chats: loading history: %w", err)
	}
	defer cursor.Close(ctx)

	var msgs []*models.MealSelectionMessage
	if err := cursor.All(ctx, &msgs); err != nil {
		return fmt.Errorf("chats: decoding history: %w", err)
	}
	s.Ctrl.RestoreHistory(msgs)
	return nil
}

func (s *Session) persistMessage(msg *models.MealSelectionMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := db.MessagesCollection.ReplaceOne(ctx,
		bson.M{"id": msg.ID},
		msg,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		log.Printf("session %s: persisting message %s: %v", s.ID, msg.ID, err)
	}
}

func (s *Session) deleteMessage(messageID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := db.MessagesCollection.DeleteOne(ctx, bson.M{"id": messageID}); err != nil {
		log.Printf("session %s: deleting message %s: %v", s.ID, messageID, err)
	}
}
