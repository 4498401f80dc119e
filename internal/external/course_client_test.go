package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/coursechat/internal/config"
	"github.com/mbeoliero/coursechat/internal/testutil"
)

func TestCourseClient(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		if r.URL.Path != "/internal/courses/go101" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"id":"go101","title":"Go 101","instructorIds":["i1","i2"]}}`))
	}))
	defer srv.Close()

	_, rdb := testutil.NewRedis(t)
	c, err := NewCourseClient(config.UpstreamConfig{BaseURL: srv.URL, Timeout: time.Second, CacheTTL: time.Minute}, rdb)
	require.NoError(t, err)
	ctx := context.Background()

	info, err := c.GetCourse(ctx, "go101")
	require.NoError(t, err)
	assert.Equal(t, "Go 101", info.Title)
	assert.True(t, info.HasInstructor("i2"))
	assert.False(t, info.HasInstructor("s1"))

	assert.Equal(t, "Go 101", c.CourseTitle(ctx, "go101"))
	assert.Equal(t, int64(1), atomic.LoadInt64(&hits))

	_, err = c.GetCourse(ctx, "missing")
	assert.Error(t, err)
	assert.Equal(t, "Course missing", c.CourseTitle(ctx, "missing"))
}
