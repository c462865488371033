package course

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pot-code/course-progress/internal/infrastructure/driver"
	"github.com/pot-code/course-progress/internal/infrastructure/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "catalog:course:"

// fetchTimeout bound of a shared database read, which no longer follows any single caller
const fetchTimeout = 10 * time.Second

// CachedCatalog course structure rarely changes, so lookups go through redis first.
// Concurrent misses for the same course collapse into one database read.
type CachedCatalog struct {
	Catalog Catalog
	KV      driver.KeyValueDB
	TTL     time.Duration
	group   singleflight.Group
}

var _ Catalog = &CachedCatalog{}
var _ Refresher = &CachedCatalog{}

func NewCachedCatalog(Catalog Catalog, KV driver.KeyValueDB, TTL time.Duration) *CachedCatalog {
	return &CachedCatalog{
		Catalog: Catalog,
		KV:      KV,
		TTL:     TTL,
	}
}

// GetLessonsForCourse cache errors are logged and fall back to the underlying catalog
func (cc *CachedCatalog) GetLessonsForCourse(ctx context.Context, courseID string) ([]*LessonModel, error) {
	logger := logging.ExtractLoggerFromContext(ctx)
	key := cacheKeyPrefix + courseID

	raw, err := cc.KV.Get(ctx, key)
	if err == nil {
		var lessons []*LessonModel
		if err := json.Unmarshal([]byte(raw), &lessons); err == nil {
			return lessons, nil
		}
		logger.Warn("discard malformed catalog cache entry", zap.String("course.id", courseID))
	} else if !errors.Is(err, driver.ErrKeyNotFound) {
		logger.Warn("catalog cache read failed", zap.String("course.id", courseID), zap.Error(err))
	}

	ch := cc.group.DoChan(key, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		lessons, err := cc.Catalog.GetLessonsForCourse(ctx, courseID)
		if err != nil {
			return nil, err
		}
		if len(lessons) > 0 {
			if data, err := json.Marshal(lessons); err == nil {
				if err := cc.KV.SetEX(ctx, key, string(data), cc.TTL); err != nil {
					logger.Warn("catalog cache write failed", zap.String("course.id", courseID), zap.Error(err))
				}
			}
		}
		return lessons, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]*LessonModel), nil
	}
}

// GetLesson single lesson lookups are not cached, they only resolve a lesson's course
func (cc *CachedCatalog) GetLesson(ctx context.Context, lessonID string) (*LessonModel, error) {
	return cc.Catalog.GetLesson(ctx, lessonID)
}

// Invalidate drop the cached structure of a course
func (cc *CachedCatalog) Invalidate(ctx context.Context, courseID string) error {
	cc.group.Forget(cacheKeyPrefix + courseID)
	return cc.KV.Delete(ctx, cacheKeyPrefix+courseID)
}
