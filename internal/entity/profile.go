package entity

import (
	"maps"

	"github.com/mbeoliero/coursechat/common"
)

// UnknownDisplayName is shown when the identity service cannot resolve a user
const UnknownDisplayName = "Unknown User"

// Profile is the display identity of a user as served by the identity service
type Profile struct {
	Id          string         `json:"id"`
	DisplayName string         `json:"displayName"`
	Role        string         `json:"role"`
	Avatar      string         `json:"avatar,omitempty"`
	Profile     map[string]any `json:"profile"`
}

// UnknownProfile is the placeholder returned when the lookup fails
func UnknownProfile(userId string) *Profile {
	return &Profile{
		Id:          userId,
		DisplayName: UnknownDisplayName,
		Role:        string(common.RoleUser),
		Profile:     map[string]any{},
	}
}

// Clone returns a copy that shares no mutable state with p
func (p *Profile) Clone() *Profile {
	c := *p
	c.Profile = maps.Clone(p.Profile)
	if c.Profile == nil {
		c.Profile = map[string]any{}
	}
	return &c
}

// CourseRole maps the platform role to a conversation role
func (p *Profile) CourseRole() common.RoleType {
	return common.ParseRole(p.Role)
}

// CourseInfo is the boundary view of a course
type CourseInfo struct {
	Id            string   `json:"id"`
	Title         string   `json:"title"`
	InstructorIds []string `json:"instructorIds"`
}

// HasInstructor reports whether userId teaches the course
func (c *CourseInfo) HasInstructor(userId string) bool {
	for _, id := range c.InstructorIds {
		if id == userId {
			return true
		}
	}
	return false
}

// FallbackCourseTitle is the title used when the course service cannot be reached
func FallbackCourseTitle(courseId string) string {
	return "Course " + courseId
}
