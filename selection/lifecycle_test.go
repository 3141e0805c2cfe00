package selection

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"nutrichat/foodapi"
	"nutrichat/models"
	"nutrichat/quantities"
)

type fakeBackend struct {
	mu          sync.Mutex
	submits     [][]foodapi.ServingSelection
	cancels     []string
	editSubmits []string
	editCancels []string
	searchRes   *foodapi.SearchFoodPhraseResponse
	searchErr   error
	onSearch    func()
}

func (f *fakeBackend) SubmitServingSelection(_ context.Context, id string, sels []foodapi.ServingSelection) (*foodapi.ChatMessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, sels)
	return &foodapi.ChatMessagesResponse{IsSuccess: true}, nil
}

func (f *fakeBackend) CancelServingSelection(_ context.Context, id string) (*foodapi.ChatMessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, id)
	return &foodapi.ChatMessagesResponse{IsSuccess: true}, nil
}

func (f *fakeBackend) SubmitEditServingSelection(_ context.Context, id, foodEntryID, groupID, itemSetID string) (*foodapi.ChatMessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.editSubmits = append(f.editSubmits, id)
	return &foodapi.ChatMessagesResponse{IsSuccess: true}, nil
}

func (f *fakeBackend) CancelEditSelection(_ context.Context, id string) (*foodapi.ChatMessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.editCancels = append(f.editCancels, id)
	return &foodapi.ChatMessagesResponse{IsSuccess: true}, nil
}

func (f *fakeBackend) SearchFoodPhrase(_ context.Context, phrase, original, messageID, componentID string) (*foodapi.SearchFoodPhraseResponse, error) {
	if f.onSearch != nil {
		f.onSearch()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.searchRes != nil {
		return f.searchRes, nil
	}
	return &foodapi.SearchFoodPhraseResponse{IsSuccess: true}, nil
}

func (f *fakeBackend) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancels)
}

func newTestController() (*Controller, *fakeBackend, *quantities.Store) {
	be := &fakeBackend{}
	store := quantities.NewStore()
	c := NewController(be, store)
	c.SetUndoWindow(20 * time.Millisecond)
	return c, be, store
}

func serving(id string, baseQty, kcal float64) models.Serving {
	return models.Serving{
		ID:           id,
		Identity:     models.ServingIdentity{Provider: "fatsecret", FoodType: "generic", FoodName: id, ServingType: "slice"},
		BaseQuantity: baseQty,
		Nutrients:    map[string]float64{"calories": kcal, "protein": 3},
	}
}

func pendingMessage(id string) *models.MealSelectionMessage {
	return &models.MealSelectionMessage{
		ID:        id,
		Role:      models.RolePendingFoodSelection,
		IsPending: true,
		Foods: []models.Food{{
			ID:       "f1",
			Name:     "toast",
			Quantity: 1,
			Components: []models.Component{{
				ID:             "c1",
				OriginalPhrase: "two slices of toast",
				Matches: []models.Match{{
					ProviderFoodID: "p1",
					DisplayName:    "White Bread",
					IsBestMatch:    true,
					Servings:       []models.Serving{serving("s1", 1, 80), serving("s2", 1, 120)},
				}, {
					ProviderFoodID: "p2",
					DisplayName:    "Wheat Bread",
					Servings:       []models.Serving{serving("s3", 1, 70)},
				}},
			}},
		}},
	}
}

func TestConfirmSubmitsEffectiveSelections(t *testing.T) {
	c, be, store := newTestController()
	msg := pendingMessage("m1")
	c.AddMessage(msg)
	store.SetMultiplier("m1", "c1", "s1", 2)

	if err := c.Confirm(context.Background(), "m1"); err != nil {
		t.Fatal(err)
	}

	if len(be.submits) != 1 {
		t.Fatalf("submit called %d times, want 1", len(be.submits))
	}
	sels := be.submits[0]
	if len(sels) != 1 {
		t.Fatalf("built %d selections, want 1", len(sels))
	}
	sel := sels[0]
	if sel.ComponentID != "c1" || sel.ProviderFoodID != "p1" {
		t.Errorf("selection = %+v, want best match p1 on c1", sel)
	}
	if sel.EditedQuantity != 2 || sel.ScaledQuantity != 2 {
		t.Errorf("quantities = %v/%v, want 2/2", sel.EditedQuantity, sel.ScaledQuantity)
	}
	if sel.ServingID.Provider != "fatsecret" {
		t.Errorf("serving identity = %+v", sel.ServingID)
	}

	if msg.IsPending || msg.Role != models.RoleCompletedFoodSelection {
		t.Errorf("message not completed: pending=%v role=%s", msg.IsPending, msg.Role)
	}
	if err := c.Confirm(context.Background(), "m1"); !errors.Is(err, ErrMessageNotPending) {
		t.Errorf("second confirm err = %v, want ErrMessageNotPending", err)
	}
}

func TestConfirmErrors(t *testing.T) {
	c, _, _ := newTestController()
	if err := c.Confirm(context.Background(), "missing"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("err = %v, want ErrMessageNotFound", err)
	}
	empty := &models.MealSelectionMessage{ID: "m1", Role: models.RolePendingFoodSelection, IsPending: true}
	c.AddMessage(empty)
	if err := c.Confirm(context.Background(), "m1"); !errors.Is(err, ErrNothingToConfirm) {
		t.Errorf("err = %v, want ErrNothingToConfirm", err)
	}
}

func TestCancelUndoRestoresInPlace(t *testing.T) {
	c, be, _ := newTestController()
	c.SetUndoWindow(time.Minute)
	first := pendingMessage("m1")
	second := pendingMessage("m2")
	c.AddMessage(first)
	c.AddMessage(second)
	want := *first

	if err := c.Cancel("m1"); err != nil {
		t.Fatal(err)
	}
	if views := c.Messages(); len(views) != 1 || views[0].Message.ID != "m2" {
		t.Fatalf("after cancel: %d messages", len(views))
	}

	if !c.Undo("m1") {
		t.Fatal("undo inside window reported failure")
	}
	views := c.Messages()
	if len(views) != 2 || views[0].Message.ID != "m1" {
		t.Fatalf("message not restored at original index: %+v", viewIDs(views))
	}
	if !reflect.DeepEqual(views[0].Message.Foods, want.Foods) {
		t.Error("restored message differs from the original")
	}
	if be.cancelCount() != 0 {
		t.Error("undone cancel still reached the backend")
	}
	if c.Cancelled("m1") {
		t.Error("undone message marked cancelled")
	}
}

func TestCancelFinalizesOnceAfterWindow(t *testing.T) {
	c, be, _ := newTestController()
	msg := pendingMessage("m1")
	msg.IsPartial = false
	c.AddMessage(msg)

	if err := c.Cancel("m1"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	if got := be.cancelCount(); got != 1 {
		t.Fatalf("backend cancel called %d times, want 1", got)
	}
	if c.Undo("m1") {
		t.Error("undo after expiry reported success")
	}
	if !c.Cancelled("m1") {
		t.Error("expired cancel not recorded")
	}

	// A late chunk for the cancelled id is a silent no-op.
	err := c.ApplyChunk(models.Chunk{MessageID: "m1", IsSuccess: true, Foods: []models.Food{{ID: "zombie"}}})
	if err != nil {
		t.Fatalf("late chunk err = %v, want nil", err)
	}
	if len(c.Messages()) != 0 {
		t.Error("late chunk resurrected the cancelled message")
	}

	// A history reload drops the cancelled id too.
	c.RestoreHistory([]*models.MealSelectionMessage{pendingMessage("m1"), pendingMessage("m9")})
	views := c.Messages()
	if len(views) != 1 || views[0].Message.ID != "m9" {
		t.Errorf("history restore kept cancelled id: %v", viewIDs(views))
	}
}

func TestCancelStreamingSkipsBackendCall(t *testing.T) {
	c, be, _ := newTestController()
	msg := pendingMessage("m1")
	msg.IsPartial = true
	c.AddMessage(msg)

	if err := c.Cancel("m1"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	if got := be.cancelCount(); got != 0 {
		t.Errorf("backend cancel called %d times for a streaming message, want 0", got)
	}
	if !c.Cancelled("m1") {
		t.Error("streaming cancel not recorded locally")
	}
}

func TestCancelEditMessageUsesEditEndpoint(t *testing.T) {
	c, be, _ := newTestController()
	msg := pendingMessage("m1")
	msg.Role = models.RolePendingEditFoodSelection
	msg.IsPartial = false
	c.AddMessage(msg)

	if err := c.Cancel("m1"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	be.mu.Lock()
	defer be.mu.Unlock()
	if len(be.editCancels) != 1 || len(be.cancels) != 0 {
		t.Errorf("editCancels=%v cancels=%v, want the edit endpoint only", be.editCancels, be.cancels)
	}
}

func TestCancelNonPending(t *testing.T) {
	c, _, _ := newTestController()
	msg := pendingMessage("m1")
	msg.IsPending = false
	c.AddMessage(msg)
	if err := c.Cancel("m1"); !errors.Is(err, ErrMessageNotPending) {
		t.Errorf("err = %v, want ErrMessageNotPending", err)
	}
}

func TestRemoveFoodUndo(t *testing.T) {
	c, be, _ := newTestController()
	c.SetUndoWindow(time.Minute)
	msg := pendingMessage("m1")
	msg.Foods = append(msg.Foods, models.Food{ID: "f2", Name: "eggs", Quantity: 1,
		Components: []models.Component{{ID: "c2", Matches: []models.Match{{ProviderFoodID: "p9", Servings: []models.Serving{serving("s9", 1, 90)}}}}}})
	c.AddMessage(msg)

	if err := c.RemoveFood("m1", "f1"); err != nil {
		t.Fatal(err)
	}
	if len(msg.Foods) != 1 || msg.Foods[0].ID != "f2" {
		t.Fatalf("foods after removal: %v", foodIDs(msg.Foods))
	}

	if !c.Undo("f1") {
		t.Fatal("undo failed")
	}
	if len(msg.Foods) != 2 || msg.Foods[0].ID != "f1" {
		t.Errorf("food not restored at original index: %v", foodIDs(msg.Foods))
	}
	if be.cancelCount() != 0 {
		t.Error("local removal reached the backend")
	}
}

func TestRemoveLastFoodCascadesToCancel(t *testing.T) {
	c, be, _ := newTestController()
	msg := pendingMessage("m1")
	msg.IsPartial = false
	c.AddMessage(msg)

	if err := c.RemoveFood("m1", "f1"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	if len(c.Messages()) != 0 {
		t.Error("empty message not removed")
	}
	if !c.Cancelled("m1") {
		t.Error("cascade did not record the cancellation")
	}
	if got := be.cancelCount(); got != 1 {
		t.Errorf("backend cancel called %d times, want 1", got)
	}
}

func TestRemoveComponentCascades(t *testing.T) {
	c, _, _ := newTestController()
	msg := pendingMessage("m1")
	msg.IsPartial = true
	c.AddMessage(msg)

	if err := c.RemoveComponent("m1", "f1", "c1"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	// Last component removed the food; last food removed the message.
	if len(c.Messages()) != 0 {
		t.Error("cascade left an empty message behind")
	}
	if !c.Cancelled("m1") {
		t.Error("cascade did not record the cancellation")
	}
}

func TestRemoveComponentUndoKeepsSiblings(t *testing.T) {
	c, _, _ := newTestController()
	c.SetUndoWindow(time.Minute)
	msg := pendingMessage("m1")
	msg.Foods[0].Components = append(msg.Foods[0].Components, models.Component{
		ID: "c2", OriginalPhrase: "butter",
		Matches: []models.Match{{ProviderFoodID: "p5", Servings: []models.Serving{serving("s5", 1, 100)}}},
	})
	c.AddMessage(msg)

	if err := c.RemoveComponent("m1", "f1", "c1"); err != nil {
		t.Fatal(err)
	}
	if len(msg.Foods[0].Components) != 1 {
		t.Fatalf("components after removal: %d", len(msg.Foods[0].Components))
	}
	if !c.Undo("c1") {
		t.Fatal("undo failed")
	}
	if len(msg.Foods[0].Components) != 2 || msg.Foods[0].Components[0].ID != "c1" {
		t.Error("component not restored at original index")
	}
}

func TestPickMatchClearsSiblingsAndSeedsServing(t *testing.T) {
	c, _, _ := newTestController()
	msg := pendingMessage("m1")
	c.AddMessage(msg)

	if err := c.PickMatch("m1", "c1", "p2"); err != nil {
		t.Fatal(err)
	}
	comp := &msg.Foods[0].Components[0]
	if comp.Matches[0].IsBestMatch {
		t.Error("previous best match flag not cleared")
	}
	if !comp.Matches[1].IsBestMatch {
		t.Error("picked match not flagged")
	}
	if comp.Matches[1].SelectedServingID != "s3" {
		t.Errorf("serving not seeded: %q", comp.Matches[1].SelectedServingID)
	}

	if err := c.PickMatch("m1", "c1", "nope"); err == nil {
		t.Error("expected error for unknown match")
	}
}

func TestPickServing(t *testing.T) {
	c, _, _ := newTestController()
	msg := pendingMessage("m1")
	c.AddMessage(msg)

	if err := c.PickServing("m1", "c1", "p1", "s2"); err != nil {
		t.Fatal(err)
	}
	if got := msg.Foods[0].Components[0].Matches[0].SelectedServingID; got != "s2" {
		t.Errorf("selected serving = %q, want s2", got)
	}
	if err := c.PickServing("m1", "c1", "p1", "nope"); err == nil {
		t.Error("expected error for unknown serving")
	}
}

func TestAddUserFoodRequiresPending(t *testing.T) {
	c, _, _ := newTestController()
	msg := pendingMessage("m1")
	c.AddMessage(msg)

	extra := models.Food{Name: "shake", Quantity: 1, Components: []models.Component{{
		Matches: []models.Match{{ProviderFoodID: "p7", Servings: []models.Serving{serving("s7", 1, 150)}}},
	}}}
	if err := c.AddUserFood("m1", extra); err != nil {
		t.Fatal(err)
	}
	added := msg.Foods[len(msg.Foods)-1]
	if !IsUserFood(&added) {
		t.Errorf("added food id %q lacks the user prefix", added.ID)
	}
	if added.Components[0].ID == "" {
		t.Error("component id not assigned")
	}

	msg.IsPending = false
	if err := c.AddUserFood("m1", extra); !errors.Is(err, ErrMessageNotPending) {
		t.Errorf("err = %v, want ErrMessageNotPending", err)
	}
}

func TestEditPhraseSplicesResultsAndPreservesFlags(t *testing.T) {
	c, be, store := newTestController()
	msg := pendingMessage("m1")
	msg.Foods = append(msg.Foods, models.Food{ID: "f2", Name: "juice", Quantity: 1,
		Components: []models.Component{{ID: "c9", Matches: []models.Match{{ProviderFoodID: "p9", Servings: []models.Serving{serving("s9", 1, 50)}}}}}})
	msg.Foods[0].Components[0].UI.IsExpanded = true
	c.AddMessage(msg)
	store.SetMultiplier("m1", "c1", "s1", 3)

	be.searchRes = &foodapi.SearchFoodPhraseResponse{
		IsSuccess: true,
		FoodOptions: []models.Food{{
			ID: "f1b", Name: "rye toast", Quantity: 1,
			Components: []models.Component{{
				ID:      "c1b",
				Matches: []models.Match{{ProviderFoodID: "p3", IsBestMatch: true, Servings: []models.Serving{serving("s4", 1, 60)}}},
			}},
		}},
	}

	if err := c.EditPhrase(context.Background(), "m1", "f1", "c1", "rye toast"); err != nil {
		t.Fatal(err)
	}

	if len(msg.Foods) != 2 {
		t.Fatalf("foods after splice: %v", foodIDs(msg.Foods))
	}
	if msg.Foods[0].ID != "f1b" {
		t.Errorf("replacement not at original position: %v", foodIDs(msg.Foods))
	}
	if msg.Foods[1].ID != "f2" {
		t.Error("sibling food lost")
	}
	if !msg.Foods[0].Components[0].UI.IsExpanded {
		t.Error("expansion flag not carried to replacement")
	}
	if _, ok := store.UserMultiplier("m1", "c1", "s1"); ok {
		t.Error("stale multipliers survive a re-search")
	}
}

func TestEditPhraseRestoresOnFailure(t *testing.T) {
	c, be, _ := newTestController()
	msg := pendingMessage("m1")
	c.AddMessage(msg)
	be.searchErr = errors.New("search unavailable")

	if err := c.EditPhrase(context.Background(), "m1", "f1", "c1", "rye toast"); err == nil {
		t.Fatal("expected error")
	}
	comp := &msg.Foods[0].Components[0]
	if len(comp.Matches) != 2 || comp.Matches[0].ProviderFoodID != "p1" {
		t.Error("original matches not restored after failure")
	}
	if comp.UI.IsSearching {
		t.Error("searching flag not cleared")
	}
}

func TestChunksKeepMergingDuringCancelUndoWindow(t *testing.T) {
	c, be, _ := newTestController()
	c.SetUndoWindow(time.Minute)
	msg := pendingMessage("m1")
	msg.IsPartial = true
	c.AddMessage(msg)

	if err := c.Cancel("m1"); err != nil {
		t.Fatal(err)
	}

	chunk := models.Chunk{
		MessageID: "m1",
		IsSuccess: true,
		IsPartial: true,
		MealName:  "Lunch",
		Foods:     []models.Food{food("f2", "rice")},
	}
	if err := c.ApplyChunk(chunk); err != nil {
		t.Fatalf("chunk inside the undo window: %v", err)
	}

	if !c.Undo("m1") {
		t.Fatal("undo inside window reported failure")
	}
	views := c.Messages()
	if len(views) != 1 {
		t.Fatalf("messages after undo: %v", viewIDs(views))
	}
	restored := views[0].Message
	if restored.MealName != "Lunch" {
		t.Errorf("meal name = %q, want the in-window chunk applied", restored.MealName)
	}
	if got := foodIDs(restored.Foods); len(got) != 2 || got[1] != "f2" {
		t.Errorf("foods after undo = %v, want the in-window food merged", got)
	}
	if be.cancelCount() != 0 {
		t.Error("undone cancel still reached the backend")
	}
}

func TestCancelOfStreamCompletedInWindowCallsBackend(t *testing.T) {
	c, be, _ := newTestController()
	msg := pendingMessage("m1")
	msg.IsPartial = true
	c.AddMessage(msg)

	if err := c.Cancel("m1"); err != nil {
		t.Fatal(err)
	}
	// The final chunk lands while the undo notice is still up; the backend
	// now knows the message, so expiry must cancel it server-side.
	if err := c.ApplyChunk(models.Chunk{MessageID: "m1", IsSuccess: true, IsPartial: false}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for be.cancelCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if be.cancelCount() != 1 {
		t.Fatalf("backend cancel called %d times, want 1", be.cancelCount())
	}
}

func TestRestoreHistorySkipsPresentAndHiddenIDs(t *testing.T) {
	c, _, _ := newTestController()
	c.SetUndoWindow(time.Minute)
	c.AddMessage(pendingMessage("m1"))

	reload := func() {
		c.RestoreHistory([]*models.MealSelectionMessage{pendingMessage("m1"), pendingMessage("m2")})
	}
	reload()
	if got := viewIDs(c.Messages()); len(got) != 2 {
		t.Fatalf("messages after reload = %v, want m1 m2", got)
	}
	reload()
	if got := viewIDs(c.Messages()); len(got) != 2 {
		t.Fatalf("messages after double reload = %v, want m1 m2", got)
	}

	if err := c.Cancel("m2"); err != nil {
		t.Fatal(err)
	}
	reload()
	if got := viewIDs(c.Messages()); len(got) != 1 || got[0] != "m1" {
		t.Fatalf("reload resurrected a message inside its undo window: %v", got)
	}
	if !c.Undo("m2") {
		t.Fatal("undo inside window reported failure")
	}
	if got := viewIDs(c.Messages()); len(got) != 2 {
		t.Fatalf("messages after undo = %v, want m1 m2", got)
	}
}

func TestEditPhraseFailureRestoresLiveComponent(t *testing.T) {
	c, be, _ := newTestController()
	msg := pendingMessage("m1")
	c.AddMessage(msg)
	be.searchErr = errors.New("search unavailable")
	// A chunk replaces the food wholesale while the search is in flight,
	// reallocating its components.
	be.onSearch = func() {
		fresh := models.Food{ID: "f1", Name: "toast", Quantity: 1, Components: []models.Component{{
			ID:             "c1",
			OriginalPhrase: "two slices of toast",
			Matches: []models.Match{{
				ProviderFoodID: "p9",
				DisplayName:    "Sourdough",
				IsBestMatch:    true,
				Servings:       []models.Serving{serving("s9", 1, 90)},
			}},
		}}}
		chunk := models.Chunk{MessageID: "m1", IsSuccess: true, IsPartial: true, Foods: []models.Food{fresh}}
		if err := c.ApplyChunk(chunk); err != nil {
			t.Error(err)
		}
	}

	if err := c.EditPhrase(context.Background(), "m1", "f1", "c1", "rye toast"); err == nil {
		t.Fatal("expected error")
	}
	comp := &msg.Foods[0].Components[0]
	if len(comp.Matches) != 2 || comp.Matches[0].ProviderFoodID != "p1" {
		t.Errorf("rollback missed the live component: %+v", comp.Matches)
	}
	if comp.UI.IsSearching {
		t.Error("searching flag left set on the live component")
	}
}

func viewIDs(views []MessageView) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.Message.ID
	}
	return out
}

func foodIDs(foods []models.Food) []string {
	out := make([]string, len(foods))
	for i, f := range foods {
		out[i] = f.ID
	}
	return out
}
