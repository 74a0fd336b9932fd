package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptWindowKey returns the cache key for an attempt's start/end timestamps.
func (r *CacheKeyStruct) AttemptWindowKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:window", attemptID)
}

// AttemptAnswersKey returns the cache key for an attempt's live answer hash.
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam's
// live proctoring feed.
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
