package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/coursechat/internal/service"
	"github.com/mbeoliero/coursechat/pkg/errcode"
	"github.com/mbeoliero/coursechat/pkg/response"
)

// CourseConversationRequest is the optional body of POST /courses/:courseId/conversation
type CourseConversationRequest struct {
	CourseTitle string `json:"courseTitle,omitempty"`
}

// CourseHandler handles course scoped requests
type CourseHandler struct {
	courseService *service.CourseService
	convService   *service.ConversationService
}

// NewCourseHandler creates a new CourseHandler
func NewCourseHandler(courseService *service.CourseService, convService *service.ConversationService) *CourseHandler {
	return &CourseHandler{courseService: courseService, convService: convService}
}

// ListInstructors handles GET /courses/:courseId/instructors
func (h *CourseHandler) ListInstructors(ctx context.Context, c *app.RequestContext) {
	if _, ok := requireActor(ctx, c); !ok {
		return
	}

	response.Success(ctx, c, h.courseService.ListInstructors(ctx, c.Param("courseId")))
}

// CourseConversation handles POST /courses/:courseId/conversation
func (h *CourseHandler) CourseConversation(ctx context.Context, c *app.RequestContext) {
	actor, ok := requireActor(ctx, c)
	if !ok {
		return
	}

	var req CourseConversationRequest
	if len(c.Request.Body()) > 0 {
		if err := c.BindAndValidate(&req); err != nil {
			response.ErrorWithCode(ctx, c, errcode.ErrValidation)
			return
		}
	}

	conv, created, err := h.convService.GetOrCreateCourseGroup(ctx, actor, c.Param("courseId"), req.CourseTitle)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	if created {
		response.Created(ctx, c, conv)
		return
	}
	response.Success(ctx, c, conv)
}

// InstructorConversation handles POST /courses/:courseId/instructors/:instructorId/conversation
func (h *CourseHandler) InstructorConversation(ctx context.Context, c *app.RequestContext) {
	actor, ok := requireActor(ctx, c)
	if !ok {
		return
	}

	conv, created, err := h.convService.GetOrCreateInstructorChat(ctx, actor, c.Param("courseId"), c.Param("instructorId"))
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	if created {
		response.Created(ctx, c, conv)
		return
	}
	response.Success(ctx, c, conv)
}
