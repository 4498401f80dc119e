package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/mbeoliero/coursechat/internal/config"
	"github.com/mbeoliero/coursechat/internal/entity"
	"github.com/mbeoliero/coursechat/pkg/constant"
)

// coursePayload is the course service's course document
type coursePayload struct {
	Id            string   `json:"id"`
	Title         string   `json:"title"`
	InstructorIds []string `json:"instructorIds"`
}

// CourseClient reads course titles and instructor lists from the course service
type CourseClient struct {
	up       *upstream
	rdb      *redis.Client
	cacheTTL time.Duration
	group    singleflight.Group
}

// NewCourseClient creates a new CourseClient
func NewCourseClient(cfg config.UpstreamConfig, rdb *redis.Client) (*CourseClient, error) {
	up, err := newUpstream(cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &CourseClient{up: up, rdb: rdb, cacheTTL: cfg.CacheTTL}, nil
}

// GetCourse fetches a course. Errors are ErrUpstreamUnavailable and meant to be absorbed.
func (c *CourseClient) GetCourse(ctx context.Context, courseId string) (*entity.CourseInfo, error) {
	key := fmt.Sprintf(constant.RedisKeyCourse(), courseId)
	if c.rdb != nil {
		if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
			var info entity.CourseInfo
			if json.Unmarshal(raw, &info) == nil {
				return &info, nil
			}
		}
	}

	v, err, _ := c.group.Do(courseId, func() (interface{}, error) {
		var payload coursePayload
		if err := c.up.getJSON(context.WithoutCancel(ctx), "/internal/courses/"+url.PathEscape(courseId), &payload); err != nil {
			return nil, err
		}
		info := entity.CourseInfo{Id: payload.Id, Title: payload.Title, InstructorIds: payload.InstructorIds}
		if info.Id == "" {
			info.Id = courseId
		}
		if c.rdb != nil && c.cacheTTL > 0 {
			if raw, err := json.Marshal(&info); err == nil {
				c.rdb.Set(ctx, key, raw, c.cacheTTL)
			}
		}
		return &info, nil
	})
	if err != nil {
		return nil, err
	}
	info := *v.(*entity.CourseInfo)
	return &info, nil
}

// CourseTitle resolves the course title, falling back to "Course {id}"
func (c *CourseClient) CourseTitle(ctx context.Context, courseId string) string {
	info, err := c.GetCourse(ctx, courseId)
	if err != nil || info.Title == "" {
		if err != nil {
			log.CtxWarn(ctx, "course lookup failed, using fallback title: course_id=%s, error=%v", courseId, err)
		}
		return entity.FallbackCourseTitle(courseId)
	}
	return info.Title
}
