// Package client is the participant-facing side of the messaging system:
// an HTTP client for the durable read/write surface, a push-channel
// connection manager, and a session that reconciles the two into one
// consistent conversation view.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"LegalWise/internal/model"
)

// APIClient talks to the durable read/write surface.
type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewAPIClient(baseURL, token string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &APIClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpClient,
	}
}

// ListConversations fetches the caller's directory view, most recent
// activity first.
func (a *APIClient) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	var out struct {
		Conversations []model.Conversation `json:"conversations"`
	}
	if err := a.do(ctx, http.MethodGet, "/lw/api/chat/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// EnsureConversation opens (or returns) the consultation with a lawyer.
func (a *APIClient) EnsureConversation(ctx context.Context, lawyerID string) (*model.Conversation, error) {
	var out struct {
		Conversation *model.Conversation `json:"conversation"`
	}
	body := map[string]string{"lawyerId": lawyerID}
	if err := a.do(ctx, http.MethodPost, "/lw/api/chat/conversations", body, &out); err != nil {
		return nil, err
	}
	return out.Conversation, nil
}

// ListMessages fetches the authoritative history in canonical order.
func (a *APIClient) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var out struct {
		Messages []model.Message `json:"messages"`
	}
	path := "/lw/api/chat/conversations/" + conversationID + "/messages"
	if err := a.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// SendMessage issues the durable write for a send. Retries must reuse the
// same clientNonce; the server returns the original canonical message
// instead of appending a duplicate.
func (a *APIClient) SendMessage(ctx context.Context, conversationID, content, clientNonce string) (*model.Message, error) {
	var out struct {
		Message *model.Message `json:"message"`
	}
	body := map[string]string{
		"conversationId": conversationID,
		"content":        content,
		"clientNonce":    clientNonce,
	}
	if err := a.do(ctx, http.MethodPost, "/lw/api/chat/messages", body, &out); err != nil {
		return nil, err
	}
	return out.Message, nil
}

// MarkAsRead flips the conversation read for the caller. Idempotent.
func (a *APIClient) MarkAsRead(ctx context.Context, conversationID string) (int64, error) {
	var out struct {
		MarkedRead int64 `json:"markedRead"`
	}
	path := "/lw/api/chat/conversations/" + conversationID + "/read"
	if err := a.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return 0, err
	}
	return out.MarkedRead, nil
}

func (a *APIClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
