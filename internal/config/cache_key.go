package config

import (
	"fmt"
)

// CacheKeyStruct names the per-interview Redis keys. All of them share the
// "interview:<id>:" prefix.
type CacheKeyStruct struct {
	prefix string
}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{prefix: "interview"}
}

func (r *CacheKeyStruct) sessionKey(sessionID, suffix string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, sessionID, suffix)
}

// InterviewPayloadKey holds the question payload of a session.
func (r *CacheKeyStruct) InterviewPayloadKey(sessionID string) string {
	return r.sessionKey(sessionID, "payload")
}

// InterviewAnswersKey is a hash of question id to saved answer.
func (r *CacheKeyStruct) InterviewAnswersKey(sessionID string) string {
	return r.sessionKey(sessionID, "answers")
}

// InterviewLiveKey holds the latest integrity snapshot of a running session.
func (r *CacheKeyStruct) InterviewLiveKey(sessionID string) string {
	return r.sessionKey(sessionID, "live")
}

// InterviewMonitorChannel is the pub/sub channel observers subscribe to.
func (r *CacheKeyStruct) InterviewMonitorChannel(sessionID string) string {
	return r.sessionKey(sessionID, "monitor")
}

var CacheKey = NewCacheKeyStruct()
