package channels

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodewatch/sentinel/internal/domain"
)

func TestLogSender_WritesAlertFields(t *testing.T) {
	var buf bytes.Buffer
	sender := NewLogSender(zerolog.New(&buf))

	err := sender.Send(context.Background(), domain.Alert{
		AlertCode: domain.AlertCode{Name: "SystemCPUUsage"},
		Message:   "cpu usage crossed the critical threshold",
		Severity:  domain.SeverityCritical,
		ParentID:  "chain-1",
		OriginID:  "system-1",
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "cpu usage crossed the critical threshold")
	assert.Contains(t, buf.String(), "\"severity\":\"CRITICAL\"")
}
