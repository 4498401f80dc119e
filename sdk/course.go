package sdk

import (
	"context"
	"net/url"
	"strings"
)

// ListInstructors lists the instructors of a course
func (c *Client) ListInstructors(ctx context.Context, courseId string) ([]*Profile, error) {
	var result []*Profile
	if err := c.get(ctx, "/courses/"+url.PathEscape(courseId)+"/instructors", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CourseConversation joins the course group conversation, creating it on first use
func (c *Client) CourseConversation(ctx context.Context, courseId, courseTitle string) (*Conversation, error) {
	var body interface{}
	if courseTitle != "" {
		body = map[string]string{"courseTitle": courseTitle}
	}
	var result Conversation
	if err := c.post(ctx, "/courses/"+url.PathEscape(courseId)+"/conversation", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// InstructorConversation opens the private conversation with an instructor of a course
func (c *Client) InstructorConversation(ctx context.Context, courseId, instructorId string) (*Conversation, error) {
	var result Conversation
	path := "/courses/" + url.PathEscape(courseId) + "/instructors/" + url.PathEscape(instructorId) + "/conversation"
	if err := c.post(ctx, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Presence reports which of the users are online
func (c *Client) Presence(ctx context.Context, userIds ...string) (map[string]bool, error) {
	params := url.Values{}
	params.Set("user_ids", strings.Join(userIds, ","))
	result := map[string]bool{}
	if err := c.get(ctx, "/presence", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}
