package workflow

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const successStream = `data: {"event":"workflow_started","task_id":"t-1","workflow_run_id":"r-1","data":{"workflow_id":"wf-9","created_at":1700000000}}

data: {"event":"node_started","task_id":"t-1","workflow_run_id":"r-1","data":{"node_id":"n1","title":"LLM"}}

data: {"event":"node_finished","task_id":"t-1","workflow_run_id":"r-1","data":{"node_id":"n1","elapsed_time":1.5,"execution_metadata":{"total_tokens":100,"total_price":"0.002","currency":"USD"},"outputs":{"partial":"a"}}}

data: {"event":"node_finished","task_id":"t-1","workflow_run_id":"r-1","data":{"node_id":"n2","elapsed_time":0.5,"execution_metadata":{"total_tokens":50,"total_price":0.001,"currency":"USD"}}}

data: {"event":"workflow_finished","task_id":"t-1","workflow_run_id":"r-1","data":{"status":"succeeded","total_steps":4,"finished_at":1700000010,"outputs":{"text":"{\"产品名称\":\"X\"}不规范内容总结报告 ok"}}}
`

func TestParseStream_Success(t *testing.T) {
	record, err := ParseStream(context.Background(), strings.NewReader(successStream))
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, record.Status)
	assert.Equal(t, "t-1", record.TaskID)
	assert.Equal(t, "r-1", record.WorkflowRunID)
	assert.Equal(t, "wf-9", record.WorkflowID)
	assert.Equal(t, int64(150), record.TotalTokens)
	assert.InDelta(t, 0.003, record.TotalPrice, 1e-9)
	assert.InDelta(t, 2.0, record.ElapsedTime, 1e-9)
	assert.Equal(t, "USD", record.Currency)
	assert.Equal(t, 4, record.TotalSteps)
	assert.Equal(t, int64(1700000000), record.CreatedAt)
	assert.Equal(t, int64(1700000010), record.FinishedAt)
	assert.Len(t, record.Events, 5)
	assert.Equal(t, "a", record.Outputs["partial"])
	assert.Contains(t, record.Outputs["text"], "不规范内容总结报告")
}

func TestStreamParser_TokenOverride(t *testing.T) {
	p := NewStreamParser()
	p.Feed(`data: {"event":"node_finished","data":{"execution_metadata":{"total_tokens":40}}}`)
	p.Feed(`data: {"event":"workflow_finished","data":{"status":"succeeded","total_tokens":0}}`)
	assert.Equal(t, int64(40), p.Record().TotalTokens, "zero total_tokens keeps the running count")

	p = NewStreamParser()
	p.Feed(`data: {"event":"node_finished","data":{"execution_metadata":{"total_tokens":40}}}`)
	p.Feed(`data: {"event":"workflow_finished","data":{"status":"succeeded","total_tokens":512}}`)
	assert.Equal(t, int64(512), p.Record().TotalTokens)
}

func TestStreamParser_NonNumericPrice(t *testing.T) {
	p := NewStreamParser()
	p.Feed(`data: {"event":"node_finished","data":{"execution_metadata":{"total_price":"n/a"}}}`)
	p.Feed(`data: {"event":"node_finished","data":{"execution_metadata":{"total_price":"0.5"}}}`)
	assert.InDelta(t, 0.5, p.Record().TotalPrice, 1e-9)
}

func TestStreamParser_IgnoresAfterTerminal(t *testing.T) {
	p := NewStreamParser()
	assert.True(t, p.Feed(`data: {"event":"workflow_finished","data":{"status":"succeeded","outputs":{"text":"done"}}}`))
	assert.True(t, p.Feed(`data: {"event":"node_finished","data":{"execution_metadata":{"total_tokens":99},"outputs":{"text":"late"}}}`))

	record, err := p.Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), record.TotalTokens)
	assert.Equal(t, "done", record.Outputs["text"])
	assert.Equal(t, 1, record.IgnoredAfterTerminal)
	assert.Len(t, record.Events, 1)
}

func TestStreamParser_SkipsNoise(t *testing.T) {
	p := NewStreamParser()
	p.Feed("")
	p.Feed("\r\n")
	p.Feed(": keep-alive comment")
	p.Feed("event: ping")
	p.Feed("data: {broken json")
	p.Feed(`data: {"event":"tts_message","data":{}}`)

	record := p.Record()
	assert.Len(t, record.Warnings, 1)
	assert.Len(t, record.Events, 1, "unknown events are logged")
	assert.Equal(t, StatusPending, record.Status)
}

func TestStreamParser_OnlyWorkflowStartedSetsIDs(t *testing.T) {
	p := NewStreamParser()
	p.Feed(`data: {"event":"workflow_started","task_id":"T1","workflow_run_id":"R1","data":{}}`)
	p.Feed(`data: {"event":"ping","task_id":"OTHER","workflow_run_id":"R2"}`)
	p.Feed(`data: {"event":"node_started","task_id":"OTHER","workflow_run_id":"R3","data":{"node_id":"n1"}}`)
	p.Feed(`data: {"event":"workflow_finished","task_id":"T9","workflow_run_id":"R9","data":{"status":"succeeded"}}`)

	record := p.Record()
	assert.Equal(t, "T1", record.TaskID)
	assert.Equal(t, "R1", record.WorkflowRunID)
	assert.Len(t, record.Events, 4)
}

func TestStreamParser_FinishedFillsMissingIDs(t *testing.T) {
	p := NewStreamParser()
	p.Feed(`data: {"event":"workflow_finished","task_id":"T2","workflow_run_id":"R2","data":{"status":"succeeded"}}`)

	assert.Equal(t, "T2", p.Record().TaskID)
	assert.Equal(t, "R2", p.Record().WorkflowRunID)
}

func TestStreamParser_NonObjectOutputsKeepCounters(t *testing.T) {
	p := NewStreamParser()
	p.Feed(`data: {"event":"node_finished","data":{"elapsed_time":0.7,"outputs":"x","execution_metadata":{"total_tokens":30,"total_price":"0.01"}}}`)
	p.Feed(`data: {"event":"node_finished","data":{"outputs":["a"],"outputs_truncated":true}}`)

	record := p.Record()
	assert.Empty(t, record.Warnings)
	assert.InDelta(t, 0.7, record.ElapsedTime, 1e-9)
	assert.Equal(t, int64(30), record.TotalTokens)
	assert.InDelta(t, 0.01, record.TotalPrice, 1e-9)
	assert.Empty(t, record.Outputs)
}

func TestParseStream_Errors(t *testing.T) {
	tests := []struct {
		name    string
		stream  string
		wantErr error
	}{
		{
			name:    "workflow failed",
			stream:  `data: {"event":"workflow_finished","data":{"status":"failed","error":"model overloaded"}}` + "\n",
			wantErr: ErrWorkflowFailed,
		},
		{
			name:    "no terminal event",
			stream:  `data: {"event":"workflow_started","task_id":"t"}` + "\n",
			wantErr: ErrIncompleteStream,
		},
		{
			name:    "stopped run",
			stream:  `data: {"event":"workflow_finished","data":{"status":"stopped"}}` + "\n",
			wantErr: ErrIncompleteStream,
		},
		{
			name:    "empty body",
			stream:  "",
			wantErr: ErrIncompleteStream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := ParseStream(context.Background(), strings.NewReader(tt.stream))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.NotNil(t, record)
		})
	}
}

type brokenReader struct {
	data string
	read bool
}

func (r *brokenReader) Read(p []byte) (int, error) {
	if !r.read {
		r.read = true
		return copy(p, r.data), nil
	}
	return 0, io.ErrUnexpectedEOF
}

func TestParseStream_Interrupted(t *testing.T) {
	r := &brokenReader{data: `data: {"event":"workflow_started","task_id":"t-7","workflow_run_id":"r-7"}` + "\n"}
	record, err := ParseStream(context.Background(), r)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStreamInterrupted)
	assert.Equal(t, "t-7", record.TaskID, "partial record is kept")
}

func TestParseStream_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ParseStream(ctx, strings.NewReader(successStream))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseStream_TrailingLineWithoutNewline(t *testing.T) {
	stream := `data: {"event":"workflow_finished","data":{"status":"succeeded","outputs":{"answer":"x"}}}`
	record, err := ParseStream(context.Background(), strings.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, "x", record.Outputs["answer"])
}
