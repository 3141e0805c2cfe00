package selection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"nutrichat/foodapi"
	"nutrichat/models"
	"nutrichat/quantities"
	"nutrichat/scaling"
)

// Backend is the slice of the selection API the controller needs.
type Backend interface {
	SubmitServingSelection(ctx context.Context, pendingMessageID string, selections []foodapi.ServingSelection) (*foodapi.ChatMessagesResponse, error)
	CancelServingSelection(ctx context.Context, pendingMessageID string) (*foodapi.ChatMessagesResponse, error)
	SubmitEditServingSelection(ctx context.Context, pendingMessageID, foodEntryID, groupID, itemSetID string) (*foodapi.ChatMessagesResponse, error)
	CancelEditSelection(ctx context.Context, pendingMessageID string) (*foodapi.ChatMessagesResponse, error)
	SearchFoodPhrase(ctx context.Context, searchPhrase, originalPhrase, messageID, componentID string) (*foodapi.SearchFoodPhraseResponse, error)
}

var (
	ErrMessageNotFound   = errors.New("selection: message not found")
	ErrMessageNotPending = errors.New("selection: message is not pending")
	ErrNothingToConfirm  = errors.New("selection: message has no selectable components")
)

// Controller owns the meal-selection messages of one chat session and
// drives each message's pending → confirmed/cancelled/edited lifecycle,
// including the timed undo windows for destructive actions.
type Controller struct {
	mu          sync.Mutex
	backend     Backend
	store       *quantities.Store
	messages    []*models.MealSelectionMessage
	cancelled   map[string]struct{}
	detached    map[string]*models.MealSelectionMessage
	undos       map[string]*Undoable
	undoWindow  time.Duration
	onChange    func()
	onError     func(error)
	onCancelled func(messageID string)
}

func NewController(backend Backend, store *quantities.Store) *Controller {
	return &Controller{
		backend:    backend,
		store:      store,
		cancelled:  make(map[string]struct{}),
		detached:   make(map[string]*models.MealSelectionMessage),
		undos:      make(map[string]*Undoable),
		undoWindow: UndoWindow,
	}
}

// SetOnChange registers the redisplay callback fired after every model
// change. Called without the controller lock held.
func (c *Controller) SetOnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// SetOnCancelled registers a hook fired once per finalized cancellation,
// before any backend call is attempted.
func (c *Controller) SetOnCancelled(fn func(messageID string)) {
	c.mu.Lock()
	c.onCancelled = fn
	c.mu.Unlock()
}

// SetUndoWindow overrides the undo window, used by tests.
func (c *Controller) SetUndoWindow(d time.Duration) {
	c.mu.Lock()
	c.undoWindow = d
	c.mu.Unlock()
}

func (c *Controller) notify() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// AddMessage registers a new pending message, e.g. at stream start.
func (c *Controller) AddMessage(msg *models.MealSelectionMessage) {
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
	c.notify()
}

// RestoreHistory loads persisted messages on a history reload, silently
// dropping any id the session already cancelled, already holds, or has
// hidden behind an open undo window.
func (c *Controller) RestoreHistory(msgs []*models.MealSelectionMessage) {
	c.mu.Lock()
	present := make(map[string]struct{}, len(c.messages))
	for _, m := range c.messages {
		present[m.ID] = struct{}{}
	}
	for _, m := range msgs {
		if _, gone := c.cancelled[m.ID]; gone {
			continue
		}
		if _, ok := present[m.ID]; ok {
			continue
		}
		if _, hidden := c.detached[m.ID]; hidden {
			continue
		}
		c.messages = append(c.messages, m)
		present[m.ID] = struct{}{}
	}
	c.mu.Unlock()
	c.notify()
}

// Messages returns display views for every visible message.
func (c *Controller) Messages() []MessageView {
	c.mu.Lock()
	defer c.mu.Unlock()
	views := make([]MessageView, 0, len(c.messages))
	for _, m := range c.messages {
		views = append(views, BuildView(m, c.store))
	}
	return views
}

// MessageView builds the display view for one message.
func (c *Controller) MessageView(messageID string) (MessageView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := c.find(messageID)
	if msg == nil {
		return MessageView{}, ErrMessageNotFound
	}
	return BuildView(msg, c.store), nil
}

func (c *Controller) find(messageID string) *models.MealSelectionMessage {
	for _, m := range c.messages {
		if m.ID == messageID {
			return m
		}
	}
	return nil
}

func (c *Controller) indexOf(messageID string) int {
	for i, m := range c.messages {
		if m.ID == messageID {
			return i
		}
	}
	return -1
}

// ApplyChunk merges one stream chunk. Chunks for cancelled ids are no-ops
// so a late-arriving chunk can never resurrect a cancelled message. A
// message inside its cancellation undo window still accepts chunks: it is
// hidden, not gone, and an undo must bring it back with nothing missed.
func (c *Controller) ApplyChunk(chunk models.Chunk) error {
	c.mu.Lock()
	if _, gone := c.cancelled[chunk.MessageID]; gone {
		c.mu.Unlock()
		return nil
	}
	msg := c.find(chunk.MessageID)
	if msg == nil {
		msg = c.detached[chunk.MessageID]
	}
	if msg == nil {
		c.mu.Unlock()
		return ErrMessageNotFound
	}
	err := ApplyChunk(msg, chunk)
	if err == nil {
		msg.UpdatedAt = time.Now()
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.notify()
	return nil
}

// PickMatch marks one candidate as the component's best match, clearing the
// flag on all siblings and re-seeding the serving selection to the match's
// first serving unless the user already chose one on that match.
func (c *Controller) PickMatch(messageID, componentID, providerFoodID string) error {
	c.mu.Lock()
	comp := c.findComponent(messageID, componentID)
	if comp == nil {
		c.mu.Unlock()
		return ErrMessageNotFound
	}
	found := false
	for i := range comp.Matches {
		m := &comp.Matches[i]
		if m.ProviderFoodID == providerFoodID {
			m.IsBestMatch = true
			found = true
			if m.ServingByID(m.SelectedServingID) == nil && len(m.Servings) > 0 {
				m.SelectedServingID = m.Servings[0].ID
			}
		} else {
			m.IsBestMatch = false
		}
	}
	c.mu.Unlock()
	if !found {
		return fmt.Errorf("selection: match %s not found on component %s", providerFoodID, componentID)
	}
	c.notify()
	return nil
}

// PickServing selects a serving on the component's given match.
func (c *Controller) PickServing(messageID, componentID, providerFoodID, servingID string) error {
	c.mu.Lock()
	comp := c.findComponent(messageID, componentID)
	if comp == nil {
		c.mu.Unlock()
		return ErrMessageNotFound
	}
	var err error
	for i := range comp.Matches {
		m := &comp.Matches[i]
		if m.ProviderFoodID != providerFoodID {
			continue
		}
		if m.ServingByID(servingID) == nil {
			err = fmt.Errorf("selection: serving %s not found on match %s", servingID, providerFoodID)
			break
		}
		m.SelectedServingID = servingID
		break
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.notify()
	return nil
}

// SetQuantity stores a user-chosen serving multiplier.
func (c *Controller) SetQuantity(messageID, componentID, servingID string, multiplier float64) {
	c.store.SetMultiplier(messageID, componentID, servingID, multiplier)
	c.notify()
}

// ToggleExpansion flips an expansion flag for a food or component.
func (c *Controller) ToggleExpansion(messageID, itemID string) bool {
	v := c.store.ToggleExpanded(messageID, itemID)
	c.notify()
	return v
}

func (c *Controller) findComponent(messageID, componentID string) *models.Component {
	msg := c.find(messageID)
	if msg == nil {
		return nil
	}
	for fi := range msg.Foods {
		for ci := range msg.Foods[fi].Components {
			if msg.Foods[fi].Components[ci].ID == componentID {
				return &msg.Foods[fi].Components[ci]
			}
		}
	}
	return nil
}

// AddUserFood appends a locally-added food (manual search, favorite) to a
// pending message. The generated temp id is never issued by the backend, so
// the food survives any later stream merge.
func (c *Controller) AddUserFood(messageID string, food models.Food) error {
	c.mu.Lock()
	msg := c.find(messageID)
	if msg == nil {
		c.mu.Unlock()
		return ErrMessageNotFound
	}
	if !msg.IsPending {
		c.mu.Unlock()
		return ErrMessageNotPending
	}
	if food.ID == "" {
		food.ID = UserFoodIDPrefix + uuid.NewString()
	}
	for i := range food.Components {
		if food.Components[i].ID == "" {
			food.Components[i].ID = uuid.NewString()
		}
	}
	msg.Foods = append(msg.Foods, food)
	c.mu.Unlock()
	c.notify()
	return nil
}

// Confirm builds one selection record per component from its effective
// match, serving and quantity and submits the lot. On success the message
// becomes read-only and cancellation bookkeeping is cleared; on failure it
// stays pending so the user can retry.
func (c *Controller) Confirm(ctx context.Context, messageID string) error {
	c.mu.Lock()
	msg := c.find(messageID)
	if msg == nil {
		c.mu.Unlock()
		return ErrMessageNotFound
	}
	if !msg.IsPending {
		c.mu.Unlock()
		return ErrMessageNotPending
	}
	selections := c.buildSelections(msg)
	c.mu.Unlock()

	if len(selections) == 0 {
		return ErrNothingToConfirm
	}

	if _, err := c.backend.SubmitServingSelection(ctx, messageID, selections); err != nil {
		return fmt.Errorf("selection: submitting selections: %w", err)
	}
	if msg.IsEdit() {
		if _, err := c.backend.SubmitEditServingSelection(ctx, messageID, msg.FoodEntryID, msg.GroupID, msg.ItemSetID); err != nil {
			return fmt.Errorf("selection: submitting edit: %w", err)
		}
	}

	c.mu.Lock()
	msg.IsPending = false
	if msg.IsEdit() {
		msg.Role = models.RoleCompletedEditFoodSelection
	} else {
		msg.Role = models.RoleCompletedFoodSelection
	}
	msg.UpdatedAt = time.Now()
	delete(c.undos, messageID)
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *Controller) buildSelections(msg *models.MealSelectionMessage) []foodapi.ServingSelection {
	var out []foodapi.ServingSelection
	for fi := range msg.Foods {
		food := &msg.Foods[fi]
		for ci := range food.Components {
			comp := &food.Components[ci]
			match, serving := EffectiveSelection(comp)
			if match == nil || serving == nil {
				continue
			}
			mult := c.store.EffectiveMultiplier(msg.ID, comp.ID, serving)
			out = append(out, foodapi.ServingSelection{
				ComponentID:    comp.ID,
				OriginalText:   comp.OriginalPhrase,
				Provider:       serving.Identity.Provider,
				ProviderFoodID: match.ProviderFoodID,
				ServingID:      serving.Identity,
				EditedQuantity: mult,
				ScaledQuantity: scaling.RoundQuantity(serving.BaseQuantity * mult),
			})
		}
	}
	return out
}

// Cancel optimistically removes the message and arms the undo window. If
// the window elapses (or the notice is dismissed without undo), the backend
// cancellation fires once and the id joins the cancelled set; Undo before
// expiry restores the message at its original index with no backend call.
func (c *Controller) Cancel(messageID string) error {
	c.mu.Lock()
	idx := c.indexOf(messageID)
	if idx < 0 {
		c.mu.Unlock()
		return ErrMessageNotFound
	}
	msg := c.messages[idx]
	if !msg.IsPending {
		c.mu.Unlock()
		return ErrMessageNotPending
	}
	c.messages = append(c.messages[:idx:idx], c.messages[idx+1:]...)
	c.detached[messageID] = msg

	u := NewUndoable(c.undoWindow,
		func() { c.finalizeCancel(msg) },
		func() { c.reinsertMessage(msg, idx) },
	)
	c.undos[messageID] = u
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *Controller) finalizeCancel(msg *models.MealSelectionMessage) {
	c.mu.Lock()
	c.cancelled[msg.ID] = struct{}{}
	delete(c.detached, msg.ID)
	delete(c.undos, msg.ID)
	// Read at finalize time: the stream may have completed during the
	// undo window, in which case the backend does know the message.
	streaming := msg.IsPartial
	done := c.onCancelled
	c.mu.Unlock()
	if done != nil {
		done(msg.ID)
	}

	// A message still streaming was never persisted server-side; closing
	// the transport is sufficient cleanup and no backend call is made.
	if streaming {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	var err error
	if msg.IsEdit() {
		_, err = c.backend.CancelEditSelection(ctx, msg.ID)
	} else {
		_, err = c.backend.CancelServingSelection(ctx, msg.ID)
	}
	if err != nil {
		// The user already dismissed the undo notice; restoring now would
		// look like data resurrection. Surface and leave the message gone.
		c.reportError(fmt.Errorf("selection: cancelling message %s: %w", msg.ID, err))
	}
}

func (c *Controller) reinsertMessage(msg *models.MealSelectionMessage, idx int) {
	c.mu.Lock()
	if idx > len(c.messages) {
		idx = len(c.messages)
	}
	c.messages = append(c.messages[:idx], append([]*models.MealSelectionMessage{msg}, c.messages[idx:]...)...)
	delete(c.detached, msg.ID)
	delete(c.undos, msg.ID)
	c.mu.Unlock()
	c.notify()
}

// Undo reverses a pending removal (message cancel, food or component
// removal) identified by the removed item's id. Reports whether the window
// was still open.
func (c *Controller) Undo(itemID string) bool {
	c.mu.Lock()
	u := c.undos[itemID]
	c.mu.Unlock()
	if u == nil {
		return false
	}
	return u.Restore()
}

// Dismiss finalizes a pending removal immediately, used when the undo
// notice is dismissed by any means other than the undo action.
func (c *Controller) Dismiss(itemID string) {
	c.mu.Lock()
	u := c.undos[itemID]
	c.mu.Unlock()
	if u != nil {
		u.Dismiss()
	}
}

// Cancelled reports whether the id was cancelled this session.
func (c *Controller) Cancelled(messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.cancelled[messageID]
	return ok
}

// RemoveFood optimistically removes one food from an open selection with an
// undo window. Removal is purely local; no backend call is ever made for
// sub-item removal. An empty message left behind cascades into a cancel.
func (c *Controller) RemoveFood(messageID, foodID string) error {
	c.mu.Lock()
	msg := c.find(messageID)
	if msg == nil {
		c.mu.Unlock()
		return ErrMessageNotFound
	}
	if !msg.IsPending {
		c.mu.Unlock()
		return ErrMessageNotPending
	}
	idx := -1
	for i := range msg.Foods {
		if msg.Foods[i].ID == foodID {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return fmt.Errorf("selection: food %s not found on message %s", foodID, messageID)
	}
	removed := msg.Foods[idx]
	msg.Foods = append(msg.Foods[:idx:idx], msg.Foods[idx+1:]...)

	u := NewUndoable(c.undoWindow,
		func() { c.finalizeFoodRemoval(msg, foodID) },
		func() { c.reinsertFood(msg, removed, idx, foodID) },
	)
	c.undos[foodID] = u
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *Controller) finalizeFoodRemoval(msg *models.MealSelectionMessage, foodID string) {
	c.mu.Lock()
	delete(c.undos, foodID)
	empty := len(msg.Foods) == 0
	if empty {
		// Last food gone: the whole message is invalid and follows the
		// cancellation path (already past its own undo window).
		if idx := c.indexOf(msg.ID); idx >= 0 {
			c.messages = append(c.messages[:idx:idx], c.messages[idx+1:]...)
		}
	}
	c.mu.Unlock()
	if empty {
		c.finalizeCancel(msg)
	}
	c.notify()
}

func (c *Controller) reinsertFood(msg *models.MealSelectionMessage, food models.Food, idx int, foodID string) {
	c.mu.Lock()
	if idx > len(msg.Foods) {
		idx = len(msg.Foods)
	}
	msg.Foods = append(msg.Foods[:idx], append([]models.Food{food}, msg.Foods[idx:]...)...)
	delete(c.undos, foodID)
	c.mu.Unlock()
	c.notify()
}

// RemoveComponent removes one component with an undo window, cascading
// upward when it empties its food (and, transitively, the message).
func (c *Controller) RemoveComponent(messageID, foodID, componentID string) error {
	c.mu.Lock()
	msg := c.find(messageID)
	if msg == nil {
		c.mu.Unlock()
		return ErrMessageNotFound
	}
	if !msg.IsPending {
		c.mu.Unlock()
		return ErrMessageNotPending
	}
	var food *models.Food
	for i := range msg.Foods {
		if msg.Foods[i].ID == foodID {
			food = &msg.Foods[i]
			break
		}
	}
	if food == nil {
		c.mu.Unlock()
		return fmt.Errorf("selection: food %s not found on message %s", foodID, messageID)
	}
	idx := -1
	for i := range food.Components {
		if food.Components[i].ID == componentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return fmt.Errorf("selection: component %s not found on food %s", componentID, foodID)
	}
	removed := food.Components[idx]
	food.Components = append(food.Components[:idx:idx], food.Components[idx+1:]...)

	u := NewUndoable(c.undoWindow,
		func() { c.finalizeComponentRemoval(msg, foodID, componentID) },
		func() { c.reinsertComponent(msg, foodID, removed, idx) },
	)
	c.undos[componentID] = u
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *Controller) finalizeComponentRemoval(msg *models.MealSelectionMessage, foodID, componentID string) {
	c.mu.Lock()
	delete(c.undos, componentID)
	for i := range msg.Foods {
		if msg.Foods[i].ID != foodID {
			continue
		}
		if len(msg.Foods[i].Components) == 0 {
			msg.Foods = append(msg.Foods[:i:i], msg.Foods[i+1:]...)
		}
		break
	}
	empty := len(msg.Foods) == 0
	if empty {
		if idx := c.indexOf(msg.ID); idx >= 0 {
			c.messages = append(c.messages[:idx:idx], c.messages[idx+1:]...)
		}
	}
	c.mu.Unlock()
	if empty {
		c.finalizeCancel(msg)
	}
	c.notify()
}

func (c *Controller) reinsertComponent(msg *models.MealSelectionMessage, foodID string, comp models.Component, idx int) {
	c.mu.Lock()
	for i := range msg.Foods {
		if msg.Foods[i].ID != foodID {
			continue
		}
		food := &msg.Foods[i]
		if idx > len(food.Components) {
			idx = len(food.Components)
		}
		food.Components = append(food.Components[:idx], append([]models.Component{comp}, food.Components[idx:]...)...)
		break
	}
	delete(c.undos, comp.ID)
	c.mu.Unlock()
	c.notify()
}

// EditPhrase re-searches one component with a corrected phrase. The
// component shows a loading placeholder while the search runs; on success
// the returned food is spliced in at the original position with the
// component's expansion flags preserved, since the backend knows nothing
// about UI state. On failure the original matches are restored.
func (c *Controller) EditPhrase(ctx context.Context, messageID, foodID, componentID, phrase string) error {
	c.mu.Lock()
	msg := c.find(messageID)
	if msg == nil {
		c.mu.Unlock()
		return ErrMessageNotFound
	}
	comp := c.findComponent(messageID, componentID)
	if comp == nil {
		c.mu.Unlock()
		return fmt.Errorf("selection: component %s not found on message %s", componentID, messageID)
	}
	originalPhrase := comp.OriginalPhrase
	originalMatches := comp.Matches
	wasExpanded := comp.UI.IsExpanded
	wasShowingMore := comp.UI.ShowingMoreOptions
	comp.Matches = []models.Match{loadingMatch(phrase)}
	comp.UI.IsSearching = true
	c.mu.Unlock()
	c.notify()

	res, err := c.backend.SearchFoodPhrase(ctx, phrase, originalPhrase, messageID, componentID)
	if err != nil || !res.IsSuccess || len(res.FoodOptions) == 0 {
		c.mu.Lock()
		// Re-resolve by id: a chunk may have replaced the food while the
		// search was in flight, detaching the pointer captured above.
		if comp := c.findComponent(messageID, componentID); comp != nil {
			comp.Matches = originalMatches
			comp.UI.IsSearching = false
		}
		c.mu.Unlock()
		c.notify()
		if err != nil {
			return fmt.Errorf("selection: re-searching phrase: %w", err)
		}
		return fmt.Errorf("selection: no matches for phrase %q", phrase)
	}

	c.mu.Lock()
	idx := -1
	for i := range msg.Foods {
		if msg.Foods[i].ID == foodID {
			idx = i
			break
		}
	}
	if idx >= 0 {
		replacements := res.FoodOptions
		for fi := range replacements {
			for ci := range replacements[fi].Components {
				rc := &replacements[fi].Components[ci]
				rc.UI.IsExpanded = wasExpanded
				rc.UI.ShowingMoreOptions = wasShowingMore
			}
		}
		foods := append([]models.Food{}, msg.Foods[:idx]...)
		foods = append(foods, replacements...)
		foods = append(foods, msg.Foods[idx+1:]...)
		msg.Foods = foods
	}
	c.store.ClearComponent(messageID, componentID)
	c.mu.Unlock()
	c.notify()
	return nil
}

func loadingMatch(phrase string) models.Match {
	return models.Match{
		ProviderFoodID: "loading",
		DisplayName:    phrase,
		IsBestMatch:    true,
	}
}

// SetOnError installs the sink for asynchronous failures; undo-window
// expiry callbacks have no caller to return an error to, so the session
// layer surfaces these as a toast.
func (c *Controller) SetOnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

func (c *Controller) reportError(err error) {
	c.mu.Lock()
	fn := c.onError
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
