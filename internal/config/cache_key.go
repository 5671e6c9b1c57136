package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptKey returns the cache key for an attempt's JSON document
func (r *CacheKeyStruct) AttemptKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s", attemptID)
}

// AttemptAnswersKey returns the cache key for an attempt's answer hash
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

// AttemptWarningsKey returns the cache key for an attempt's warning list
func (r *CacheKeyStruct) AttemptWarningsKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:warnings", attemptID)
}

// OpenAttemptKey returns the cache key holding a user's open attempt for a test
func (r *CacheKeyStruct) OpenAttemptKey(userID, testID string) string {
	return fmt.Sprintf("user:%s:test:%s:open_attempt", userID, testID)
}

// OpenAttemptsKey returns the set of all in-progress attempt ids
func (r *CacheKeyStruct) OpenAttemptsKey() string {
	return "attempts:open"
}

// ProctorChannel returns the Redis PubSub channel name for proctor events
func (r *CacheKeyStruct) ProctorChannel() string {
	return "proctor:events"
}

var CacheKey = NewCacheKeyStruct()
