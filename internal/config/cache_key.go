package config

import (
	"fmt"

	"github.com/google/uuid"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserSessionKey returns the cache key for a user's login session.
func (r *CacheKeyStruct) UserSessionKey(userID int) string {
	return fmt.Sprintf("login:%d", userID)
}

// AttemptStartKey returns the cache key for a student's attempt start time.
func (r *CacheKeyStruct) AttemptStartKey(testID uuid.UUID, studentID int) string {
	return fmt.Sprintf("student:%d:test:%s:attempt_start", studentID, testID)
}

// AttemptAnswersKey returns the cache key for a student's autosaved answers.
func (r *CacheKeyStruct) AttemptAnswersKey(testID uuid.UUID, studentID int) string {
	return fmt.Sprintf("student:%d:test:%s:answers", studentID, testID)
}

// TestPayloadKey returns the cache key for a test's student-facing payload.
func (r *CacheKeyStruct) TestPayloadKey(testID uuid.UUID) string {
	return fmt.Sprintf("test:%s:payload", testID)
}

// TestResultsChannel returns the Redis PubSub channel carrying newly
// submitted results for a test.
func (r *CacheKeyStruct) TestResultsChannel(testID uuid.UUID) string {
	return fmt.Sprintf("test:%s:results", testID)
}

var CacheKey = NewCacheKeyStruct()
