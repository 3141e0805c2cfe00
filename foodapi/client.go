package foodapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"

	"nutrichat/models"
)

// ServingSelection is one confirmed component selection sent to the backend.
type ServingSelection struct {
	ComponentID    string                 `json:"component_id"`
	OriginalText   string                 `json:"original_text"`
	Provider       string                 `json:"provider"`
	ProviderFoodID string                 `json:"provider_food_id"`
	ServingID      models.ServingIdentity `json:"serving_id"`
	EditedQuantity float64                `json:"edited_quantity"`
	ScaledQuantity float64                `json:"scaled_quantity"`
}

type ChatMessagesResponse struct {
	IsSuccess bool                          `json:"is_success"`
	Errors    []string                      `json:"errors,omitempty"`
	Messages  []models.MealSelectionMessage `json:"messages,omitempty"`
}

type SearchFoodPhraseResponse struct {
	IsSuccess   bool          `json:"is_success"`
	Errors      []string      `json:"errors,omitempty"`
	FoodOptions []models.Food `json:"food_options"`
}

type InstantAlternativesResponse struct {
	Alternatives []models.Match `json:"alternatives"`
}

// Client talks to the nutrition backend's selection API. Transient
// transport failures are retried with exponential backoff; HTTP 4xx are
// permanent.
type Client struct {
	baseURL string
	http    *http.Client
	retries uint
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		retries: 3,
	}
}

func (c *Client) SubmitServingSelection(ctx context.Context, pendingMessageID string, selections []ServingSelection) (*ChatMessagesResponse, error) {
	body := map[string]any{
		"pending_message_id": pendingMessageID,
		"selections":         selections,
	}
	return postJSON[ChatMessagesResponse](ctx, c, "/api/v1/selection/submit", body)
}

func (c *Client) CancelServingSelection(ctx context.Context, pendingMessageID string) (*ChatMessagesResponse, error) {
	body := map[string]any{"pending_message_id": pendingMessageID}
	return postJSON[ChatMessagesResponse](ctx, c, "/api/v1/selection/cancel", body)
}

func (c *Client) SubmitEditServingSelection(ctx context.Context, pendingMessageID, foodEntryID, groupID, itemSetID string) (*ChatMessagesResponse, error) {
	body := map[string]any{
		"pending_message_id": pendingMessageID,
		"food_entry_id":      foodEntryID,
		"group_id":           groupID,
		"item_set_id":        itemSetID,
	}
	return postJSON[ChatMessagesResponse](ctx, c, "/api/v1/selection/edit/submit", body)
}

func (c *Client) CancelEditSelection(ctx context.Context, pendingMessageID string) (*ChatMessagesResponse, error) {
	body := map[string]any{"pending_message_id": pendingMessageID}
	return postJSON[ChatMessagesResponse](ctx, c, "/api/v1/selection/edit/cancel", body)
}

func (c *Client) SearchFoodPhrase(ctx context.Context, searchPhrase, originalPhrase, messageID, componentID string) (*SearchFoodPhraseResponse, error) {
	body := map[string]any{
		"search_phrase":   searchPhrase,
		"original_phrase": originalPhrase,
		"message_id":      messageID,
	}
	if componentID != "" {
		body["component_id"] = componentID
	}
	return postJSON[SearchFoodPhraseResponse](ctx, c, "/api/v1/foods/search", body)
}

func (c *Client) GetInstantAlternatives(ctx context.Context, originalPhrase, componentID string) (*InstantAlternativesResponse, error) {
	q := url.Values{}
	q.Set("original_phrase", originalPhrase)
	q.Set("component_id", componentID)
	return getJSON[InstantAlternativesResponse](ctx, c, "/api/v1/foods/alternatives?"+q.Encode())
}

// ParseMealStream starts a meal-parsing stream for a user message. The
// returned body is line-delimited "data: <json>" frames; the caller owns
// closing it, which also cancels chunk delivery.
func (c *Client) ParseMealStream(ctx context.Context, text, sessionID, messageID string) (io.ReadCloser, error) {
	body, err := json.Marshal(map[string]any{
		"text":       text,
		"session_id": sessionID,
		"message_id": messageID,
	})
	if err != nil {
		return nil, fmt.Errorf("foodapi: marshalling parse request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/meals/parse", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("foodapi: creating parse request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("foodapi: starting parse stream: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		defer res.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("foodapi: parse stream failed with status %d: %s", res.StatusCode, msg)
	}
	return res.Body, nil
}

func postJSON[T any](ctx context.Context, c *Client, path string, body any) (*T, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("foodapi: marshalling request: %w", err)
	}
	return doJSON[T](ctx, c, http.MethodPost, path, payload)
}

func getJSON[T any](ctx context.Context, c *Client, path string) (*T, error) {
	return doJSON[T](ctx, c, http.MethodGet, path, nil)
}

func doJSON[T any](ctx context.Context, c *Client, method, path string, payload []byte) (*T, error) {
	op := func() (*T, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("foodapi: creating request: %w", err))
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		res, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("foodapi: sending request: %w", err)
		}
		defer res.Body.Close()
		if res.StatusCode >= 500 {
			return nil, fmt.Errorf("foodapi: %s failed with status %d", path, res.StatusCode)
		}
		if res.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
			return nil, backoff.Permanent(fmt.Errorf("foodapi: %s failed with status %d: %s", path, res.StatusCode, msg))
		}
		var out T
		if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("foodapi: decoding %s response: %w", path, err))
		}
		return &out, nil
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.retries),
	)
}
