package sdk

import (
	"context"
	"net/url"
	"strconv"
)

// SendMessage sends a text message over REST
func (c *Client) SendMessage(ctx context.Context, conversationId, content string) (*Message, error) {
	var result Message
	req := &SendMessageRequest{ConversationId: conversationId, Content: content}
	if err := c.post(ctx, "/messages", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListMessages returns a page of history, oldest first.
// beforeId > 0 pages backwards from that message instead of by page number.
func (c *Client) ListMessages(ctx context.Context, conversationId string, page, limit int, beforeId int64) (*Page[*Message], error) {
	params := pageParams(page, limit)
	if beforeId > 0 {
		params.Set("before", strconv.FormatInt(beforeId, 10))
	}

	var result Page[*Message]
	if err := c.get(ctx, "/conversations/"+url.PathEscape(conversationId)+"/messages", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
