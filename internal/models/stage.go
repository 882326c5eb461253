package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage identifies one discrete step of the document pipeline.
type Stage string

const (
	StageOCR     Stage = "ocr"
	StageChunk   Stage = "chunk"
	StageExtract Stage = "extract"
	StageResolve Stage = "resolve"
	StageRelate  Stage = "relate"
)

// stageOrder fixes the execution sequence. No stage is ever skipped.
var stageOrder = []Stage{StageOCR, StageChunk, StageExtract, StageResolve, StageRelate}

// Stages returns the pipeline stages in execution order.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// ParseStage validates a stage name from the wire.
func ParseStage(s string) (Stage, error) {
	for _, st := range stageOrder {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// Next returns the stage following s, or false when s is the last stage.
func (s Stage) Next() (Stage, bool) {
	for i, st := range stageOrder {
		if st == s && i+1 < len(stageOrder) {
			return stageOrder[i+1], true
		}
	}
	return "", false
}

// From returns s and every downstream stage, in order. Used by reprocessing
// to invalidate a stage together with everything that depends on it.
func (s Stage) From() []Stage {
	for i, st := range stageOrder {
		if st == s {
			out := make([]Stage, len(stageOrder)-i)
			copy(out, stageOrder[i:])
			return out
		}
	}
	return nil
}

// ActiveStatus is the document status while the stage is running.
func (s Stage) ActiveStatus() DocumentStatus {
	switch s {
	case StageOCR:
		return StatusOCRSubmitted
	case StageChunk:
		return StatusChunking
	case StageExtract:
		return StatusExtracting
	case StageResolve:
		return StatusResolving
	case StageRelate:
		return StatusRelating
	}
	return StatusPending
}

// DoneStatus is the document status once the stage has completed.
func (s Stage) DoneStatus() DocumentStatus {
	switch s {
	case StageOCR:
		return StatusOCRDone
	case StageChunk:
		return StatusChunked
	case StageExtract:
		return StatusExtracted
	case StageResolve:
		return StatusResolved
	case StageRelate:
		return StatusCompleted
	}
	return StatusPending
}

// EntryStatus is the document status a reprocess rewinds to so that the
// stage can be re-entered: the done status of the previous stage.
func (s Stage) EntryStatus() DocumentStatus {
	for i, st := range stageOrder {
		if st == s {
			if i == 0 {
				return StatusPending
			}
			return stageOrder[i-1].DoneStatus()
		}
	}
	return StatusPending
}

// TaskStatus is the lifecycle of a single stage attempt chain.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// StageTaskRecord is the durable marker of a stage's attempt and completion
// state for one document. There is one live record per (document, stage);
// it backs idempotency checks and crash recovery and is never deleted while
// the document exists, only reset by an explicit reprocess.
type StageTaskRecord struct {
	DocumentID    uuid.UUID  `json:"documentId"`
	Stage         Stage      `json:"stage"`
	Status        TaskStatus `json:"status"`
	AttemptCount  int        `json:"attemptCount"`
	ExternalJobID string     `json:"externalJobId,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
	StartedAt     time.Time  `json:"startedAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// NewStageTaskRecord creates a pending record for a first attempt.
func NewStageTaskRecord(docID uuid.UUID, stage Stage) *StageTaskRecord {
	now := time.Now().UTC()
	return &StageTaskRecord{
		DocumentID: docID,
		Stage:      stage,
		Status:     TaskPending,
		StartedAt:  now,
		UpdatedAt:  now,
	}
}
