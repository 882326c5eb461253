package models

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus tracks a document through the processing lifecycle.
type DocumentStatus string

const (
	StatusPending      DocumentStatus = "pending"
	StatusOCRSubmitted DocumentStatus = "ocr_submitted"
	StatusOCRPolling   DocumentStatus = "ocr_polling"
	StatusOCRDone      DocumentStatus = "ocr_done"
	StatusChunking     DocumentStatus = "chunking"
	StatusChunked      DocumentStatus = "chunked"
	StatusExtracting   DocumentStatus = "extracting"
	StatusExtracted    DocumentStatus = "extracted"
	StatusResolving    DocumentStatus = "resolving"
	StatusResolved     DocumentStatus = "resolved"
	StatusRelating     DocumentStatus = "relating"
	StatusCompleted    DocumentStatus = "completed"
	StatusFailed       DocumentStatus = "failed"
	StatusCancelled    DocumentStatus = "cancelled"
)

// Document is the unit of work moving through the pipeline. It is owned by
// the orchestrator and only mutated through lifecycle transitions.
type Document struct {
	ID            uuid.UUID      `json:"id"`
	Status        DocumentStatus `json:"status"`
	CurrentStage  Stage          `json:"currentStage"`
	SourceRef     string         `json:"sourceRef"`
	Filename      string         `json:"filename,omitempty"`
	ErrorMessage  string         `json:"errorMessage,omitempty"`
	ExternalJobID string         `json:"externalJobId,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`

	// Version guards optimistic concurrency in the datastore; the store
	// bumps it on every successful update.
	Version int64 `json:"version"`
}

// transitions enumerates the forward edges of the lifecycle state machine.
// failed and cancelled are reachable from every non-terminal state and are
// handled in CanTransition rather than listed here.
var transitions = map[DocumentStatus][]DocumentStatus{
	StatusPending:      {StatusOCRSubmitted},
	StatusOCRSubmitted: {StatusOCRPolling, StatusOCRDone},
	StatusOCRPolling:   {StatusOCRPolling, StatusOCRDone},
	StatusOCRDone:      {StatusChunking},
	StatusChunking:     {StatusChunked},
	StatusChunked:      {StatusExtracting},
	StatusExtracting:   {StatusExtracted},
	StatusExtracted:    {StatusResolving},
	StatusResolving:    {StatusResolved},
	StatusResolved:     {StatusRelating},
	StatusRelating:     {StatusCompleted},
}

// Terminal reports whether the status admits no further transitions.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether moving from the document's current status to
// the target is a legal state-machine edge.
func (d *Document) CanTransition(to DocumentStatus) bool {
	if d.Status.Terminal() {
		return false
	}
	if to == StatusFailed || to == StatusCancelled {
		return true
	}
	for _, next := range transitions[d.Status] {
		if next == to {
			return true
		}
	}
	return false
}

// Reset rewinds the document for reprocessing from the given stage. This is
// the only sanctioned way a document moves backwards.
func (d *Document) Reset(status DocumentStatus, stage Stage) {
	d.Status = status
	d.CurrentStage = stage
	d.ErrorMessage = ""
	d.ExternalJobID = ""
}

// NewDocument creates a pending document for a stored source blob.
func NewDocument(sourceRef, filename string) *Document {
	now := time.Now().UTC()
	return &Document{
		ID:           uuid.New(),
		Status:       StatusPending,
		CurrentStage: StageOCR,
		SourceRef:    sourceRef,
		Filename:     filename,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
