package stream

import (
	"context"
	"errors"
	"strings"
	"testing"

	"nutrichat/models"
)

func collect(t *testing.T, body string) ([]models.Chunk, error) {
	t.Helper()
	var got []models.Chunk
	err := Read(context.Background(), strings.NewReader(body), func(c models.Chunk) error {
		got = append(got, c)
		return nil
	})
	return got, err
}

func TestReadAppliesDataLinesInOrder(t *testing.T) {
	body := strings.Join([]string{
		`: comment`,
		``,
		`data: {"message_id":"m1","is_partial":true,"processing_stage":"parsing"}`,
		`event: progress`,
		`data: {"message_id":"m1","is_partial":false,"meal_name":"Breakfast"}`,
		``,
	}, "\n")

	got, err := collect(t, body)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("applied %d chunks, want 2", len(got))
	}
	if !got[0].IsPartial || got[0].ProcessingStage != "parsing" {
		t.Errorf("first chunk = %+v", got[0])
	}
	if got[1].IsPartial || got[1].MealName != "Breakfast" {
		t.Errorf("second chunk = %+v", got[1])
	}
}

func TestReadDefaults(t *testing.T) {
	body := `data: {"message_id":"m1","foods":[{"food_id":"f1","name":"toast","components":[{"component_id":"c1","matches":[{"provider_food_id":"p1","servings":[{"serving_id":"s1","base_quantity":2}]}]}]}]}`

	got, err := collect(t, body)
	if err != nil {
		t.Fatal(err)
	}
	chunk := got[0]
	if !chunk.IsSuccess {
		t.Error("omitted is_success should default to success")
	}
	f := chunk.Foods[0]
	if f.Quantity != 1 {
		t.Errorf("food quantity = %v, want default 1", f.Quantity)
	}
	s := f.Components[0].Matches[0].Servings[0]
	if s.AIRecommendedScale != 1 {
		t.Errorf("ai scale = %v, want default 1", s.AIRecommendedScale)
	}
	if s.BaseQuantity != 2 {
		t.Errorf("base quantity = %v, want 2", s.BaseQuantity)
	}
}

func TestReadRestrictedAborts(t *testing.T) {
	body := strings.Join([]string{
		`data: {"message_id":"m1","is_partial":true}`,
		`data: {"message_id":"m1","is_restricted":true}`,
		`data: {"message_id":"m1","meal_name":"never seen"}`,
	}, "\n")

	got, err := collect(t, body)
	if !errors.Is(err, ErrRestricted) {
		t.Fatalf("err = %v, want ErrRestricted", err)
	}
	if len(got) != 1 {
		t.Errorf("applied %d chunks before restriction, want 1", len(got))
	}
}

func TestReadBackendFailure(t *testing.T) {
	body := `data: {"message_id":"m1","is_success":false,"errors":["could not parse meal"]}`

	got, err := collect(t, body)
	var se *StreamError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StreamError", err)
	}
	if len(se.Errors) != 1 || se.Errors[0] != "could not parse meal" {
		t.Errorf("errors = %v", se.Errors)
	}
	if len(got) != 0 {
		t.Error("failed chunk must not be applied")
	}
}

func TestReadDecodeError(t *testing.T) {
	if _, err := collect(t, `data: {not json`); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestReadHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Read(ctx, strings.NewReader(`data: {"message_id":"m1"}`), func(models.Chunk) error {
		t.Fatal("apply called after cancellation")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestReadPropagatesApplyError(t *testing.T) {
	wantErr := errors.New("boom")
	err := Read(context.Background(), strings.NewReader(`data: {"message_id":"m1"}`), func(models.Chunk) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}
