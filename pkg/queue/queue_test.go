package queue

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeott/docpipeline/internal/models"
	"github.com/joeott/docpipeline/pkg/logger"
)

func newTestQueue() *StageQueue {
	return &StageQueue{logger: logger.NewTestLogger(), timeout: time.Minute}
}

func optionValue(opts []asynq.Option, optType asynq.OptionType) (interface{}, bool) {
	for _, opt := range opts {
		if opt.Type() == optType {
			return opt.Value(), true
		}
	}
	return nil, false
}

func TestStageOptionsAllowCrashRedelivery(t *testing.T) {
	q := newTestQueue()

	opts := q.stageOptions(uuid.New(), models.StageChunk, 1, 0)

	retry, ok := optionValue(opts, asynq.MaxRetryOpt)
	require.True(t, ok)
	// A lease-expired task of a crashed worker is only redelivered while
	// retried < max retry; zero would archive it and strand the document.
	assert.Positive(t, retry.(int))
}

func TestPollOptionsAllowCrashRedelivery(t *testing.T) {
	q := newTestQueue()

	opts := q.pollOptions(uuid.New(), 3, time.Second)

	retry, ok := optionValue(opts, asynq.MaxRetryOpt)
	require.True(t, ok)
	assert.Positive(t, retry.(int))
}

func TestStageOptionsDedupByAttempt(t *testing.T) {
	q := newTestQueue()
	docID := uuid.New()

	opts := q.stageOptions(docID, models.StageExtract, 2, 0)
	id, ok := optionValue(opts, asynq.TaskIDOpt)
	require.True(t, ok)
	assert.Equal(t, fmt.Sprintf("stage:extract:%s:2", docID), id.(string))

	// A negative attempt replays a trigger past the dedup window.
	opts = q.stageOptions(docID, models.StageExtract, -1, 0)
	_, ok = optionValue(opts, asynq.TaskIDOpt)
	assert.False(t, ok)
}

func TestStageOptionsDelay(t *testing.T) {
	q := newTestQueue()

	opts := q.stageOptions(uuid.New(), models.StageResolve, 1, 10*time.Second)
	delay, ok := optionValue(opts, asynq.ProcessInOpt)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, delay.(time.Duration))

	opts = q.stageOptions(uuid.New(), models.StageResolve, 1, 0)
	_, ok = optionValue(opts, asynq.ProcessInOpt)
	assert.False(t, ok)
}
