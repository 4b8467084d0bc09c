package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordWritesJSONWithCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	ctx := WithCorrelationID(context.Background(), "req-123")
	Record(ctx, "payout.created", logrus.Fields{"creator_id": 7, "amount": 1000})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "payout.created", line["action"])
	assert.Equal(t, "req-123", line["correlation_id"])
	assert.Equal(t, float64(7), line["creator_id"])
	assert.Equal(t, "info", line["level"])
}

func TestAnomalyWithoutCorrelation(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	Anomaly(context.Background(), "charge.late_success", logrus.Fields{"reference": "r"})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warning", line["level"])
	_, ok := line["correlation_id"]
	assert.False(t, ok)
}
