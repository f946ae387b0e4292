package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compound-floodrisk/sfincs-batch/internal/domain"
)

func TestStatusToMessage(t *testing.T) {
	finished := time.Date(2022, 3, 1, 14, 30, 0, 0, time.UTC)
	st := domain.RunStatus{
		Scenario:   domain.Scenario{Name: "qb010_qp000", Suffix: "_dt0"},
		Dir:        "/models/qb010_qp000_dt0",
		State:      domain.StateFailed,
		Executor:   "container",
		ExitCode:   139,
		Error:      "zsmax.dat: truncated",
		FinishedAt: finished,
	}

	msg, err := statusToMessage(st)
	require.NoError(t, err)

	assert.Equal(t, []byte("qb010_qp000_dt0"), msg.Key)
	assert.Contains(t, string(msg.Value), `"state":"failed"`)
	assert.Contains(t, string(msg.Value), `"exit_code":139`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "state", msg.Headers[0].Key)
	assert.Equal(t, []byte("failed"), msg.Headers[0].Value)
	assert.Equal(t, "finished_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(finished.Format(time.RFC3339)), msg.Headers[1].Value)
}

func TestStatusToMessage_Running(t *testing.T) {
	st := domain.NewRunStatus(domain.Scenario{Name: "a"}, "/m/a")
	st.Start("local")

	msg, err := statusToMessage(st)
	require.NoError(t, err)
	assert.Len(t, msg.Headers, 1, "no finished_at before the run ends")
	assert.Contains(t, string(msg.Value), `"started_at"`)
	assert.NotContains(t, string(msg.Value), `"finished_at"`)
}
