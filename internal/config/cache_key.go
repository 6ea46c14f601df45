package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ParticipantLoginKey returns the cache key holding a participant's active login JTI
func (r *CacheKeyStruct) ParticipantLoginKey(participantID int) string {
	return fmt.Sprintf("login:%d", participantID)
}

// SessionStartKey returns the cache key for a participant's evaluation session start time
func (r *CacheKeyStruct) SessionStartKey(evaluationID string, participantID int) string {
	return fmt.Sprintf("participant:%d:evaluation:%s:session_start", participantID, evaluationID)
}

// ParticipantAnswersKey returns the cache key for a participant's autosaved answers
func (r *CacheKeyStruct) ParticipantAnswersKey(evaluationID string, participantID int) string {
	return fmt.Sprintf("participant:%d:evaluation:%s:answers", participantID, evaluationID)
}

// EvaluationPayloadKey returns the cache key for an evaluation's participant-facing payload
func (r *CacheKeyStruct) EvaluationPayloadKey(evaluationID string) string {
	return fmt.Sprintf("evaluation:%s:payload", evaluationID)
}

// EvaluationAnswerKey returns the cache key for an evaluation's answer key hash
func (r *CacheKeyStruct) EvaluationAnswerKey(evaluationID string) string {
	return fmt.Sprintf("evaluation:%s:key", evaluationID)
}

// EvaluationMonitorChannel returns the Redis PubSub channel name for an evaluation's live monitor
func (r *CacheKeyStruct) EvaluationMonitorChannel(evaluationID string) string {
	return fmt.Sprintf("evaluation:%s:monitor", evaluationID)
}

var CacheKey = NewCacheKeyStruct()
