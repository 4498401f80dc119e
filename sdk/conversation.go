package sdk

import (
	"context"
	"net/url"
)

// ListConversations lists the caller's active conversations, most recent activity first
func (c *Client) ListConversations(ctx context.Context, page, limit int) (*Page[*Conversation], error) {
	var result Page[*Conversation]
	if err := c.get(ctx, "/conversations", pageParams(page, limit), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateConversation finds or creates a conversation
func (c *Client) CreateConversation(ctx context.Context, req *CreateConversationRequest) (*Conversation, error) {
	var result Conversation
	if err := c.post(ctx, "/conversations", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DirectConversation is a convenience method to open the direct conversation with a user
func (c *Client) DirectConversation(ctx context.Context, otherUserId string) (*Conversation, error) {
	return c.CreateConversation(ctx, &CreateConversationRequest{
		Kind:           ConvKindDirect,
		ParticipantIds: []string{otherUserId},
	})
}

// GetConversation gets a single conversation
func (c *Client) GetConversation(ctx context.Context, conversationId string) (*Conversation, error) {
	var result Conversation
	if err := c.get(ctx, "/conversations/"+url.PathEscape(conversationId), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateConversation changes title, description or settings
func (c *Client) UpdateConversation(ctx context.Context, conversationId string, req *UpdateConversationRequest) (*Conversation, error) {
	var result Conversation
	if err := c.patch(ctx, "/conversations/"+url.PathEscape(conversationId), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeactivateConversation deactivates a conversation
func (c *Client) DeactivateConversation(ctx context.Context, conversationId string) error {
	return c.delete(ctx, "/conversations/"+url.PathEscape(conversationId))
}

// AddParticipant adds a user to a group conversation
func (c *Client) AddParticipant(ctx context.Context, conversationId string, req *AddParticipantRequest) (*Conversation, error) {
	var result Conversation
	if err := c.post(ctx, "/conversations/"+url.PathEscape(conversationId)+"/participants", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkRead marks every message of the conversation as read
func (c *Client) MarkRead(ctx context.Context, conversationId string) (int, error) {
	var result MarkReadResponse
	if err := c.post(ctx, "/conversations/"+url.PathEscape(conversationId)+"/read", nil, &result); err != nil {
		return 0, err
	}
	return result.Marked, nil
}
