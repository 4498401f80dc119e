package entity

import (
	"fmt"
	"time"

	"github.com/mbeoliero/coursechat/pkg/constant"
)

// NowUnixMilli returns current unix timestamp in milliseconds
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// SortPair returns the two user ids in ascending order
func SortPair(userA, userB string) (string, string) {
	if userA > userB {
		return userB, userA
	}
	return userA, userB
}

// DirectUniqueKey generates the unique key of a direct conversation.
// Format: direct:{min(userA,userB)}:{max(userA,userB)}
// The pair is sorted so the key is independent of who starts the chat.
func DirectUniqueKey(userA, userB string) string {
	lo, hi := SortPair(userA, userB)
	return fmt.Sprintf(constant.UniqueKeyDirect, lo, hi)
}

// CourseGroupUniqueKey generates the unique key of a course group conversation.
// Format: course:{courseId}
func CourseGroupUniqueKey(courseId string) string {
	return fmt.Sprintf(constant.UniqueKeyCourseGroup, courseId)
}

// InstructorUniqueKey generates the unique key of a student/instructor conversation.
// Format: instructor:{courseId}:{min}:{max}
func InstructorUniqueKey(courseId, userA, userB string) string {
	lo, hi := SortPair(userA, userB)
	return fmt.Sprintf(constant.UniqueKeyInstructorGroup, courseId, lo, hi)
}
