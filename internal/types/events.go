package types

import (
	"fmt"
	"time"
)

// EventType enumerates the progress event vocabulary.
type EventType string

const (
	EventJobStarted        EventType = "job.started"
	EventDocumentFound     EventType = "document.found"
	EventDocumentDuplicate EventType = "document.duplicate"
	EventSegmentChunking   EventType = "segment.chunking"
	EventSegmentEmbedding  EventType = "segment.embedding"
	EventSegmentStored     EventType = "segment.stored"
	EventFactExtracted     EventType = "fact.extracted"
	EventJobCompleted      EventType = "job.completed"
	EventJobFailed         EventType = "job.failed"
	EventJobCancelled      EventType = "job.cancelled"
)

// Terminal reports whether this event closes its topic.
func (t EventType) Terminal() bool {
	return t == EventJobCompleted || t == EventJobFailed || t == EventJobCancelled
}

// Event is one frame on a progress topic. Seq is assigned by the bus and is
// strictly increasing per topic.
type Event struct {
	Seq     uint64         `json:"seq"`
	TS      time.Time      `json:"ts"`
	Type    EventType      `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// TopicKey builds the progress topic for a (case, job) pair.
func TopicKey(caseName, processingID string) string {
	return fmt.Sprintf("case:%s:job:%s", caseName, processingID)
}
