package service

import (
	"context"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/coursechat/internal/entity"
)

// CourseService exposes course metadata needed by chat clients
type CourseService struct {
	courses  CourseResolver
	profiles ProfileResolver
}

// NewCourseService creates a new CourseService
func NewCourseService(courses CourseResolver, profiles ProfileResolver) *CourseService {
	return &CourseService{courses: courses, profiles: profiles}
}

// ListInstructors returns the profiles of a course's instructors.
// An unreachable course service yields an empty list.
func (s *CourseService) ListInstructors(ctx context.Context, courseId string) []*entity.Profile {
	result := []*entity.Profile{}
	if s.courses == nil {
		return result
	}
	course, err := s.courses.GetCourse(ctx, courseId)
	if err != nil {
		log.CtxWarn(ctx, "list instructors degraded: course_id=%s, error=%v", courseId, err)
		return result
	}
	if len(course.InstructorIds) == 0 {
		return result
	}

	var resolved map[string]*entity.Profile
	if s.profiles != nil {
		resolved = s.profiles.GetProfiles(ctx, course.InstructorIds)
	}
	for _, id := range course.InstructorIds {
		if p, ok := resolved[id]; ok {
			result = append(result, p)
		} else {
			result = append(result, entity.UnknownProfile(id))
		}
	}
	return result
}
