package gateway

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftahirops/xguard/model"
)

func TestAlertMsgDropsEncodedFrame(t *testing.T) {
	e := model.AlertEvent{
		ID:                   "b1c2",
		Type:                 model.AlertPersonnelDistress,
		Description:          "Confirmed SOS gesture",
		Severity:             model.SeverityUrgent,
		EngineRuntimeSeconds: 42.5,
		Timestamp:            time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		EvidencePath:         "breach_snapshots/x.jpg",
		EvidenceEncoded:      "bGFyZ2UgZnJhbWU=",
	}
	msg, err := alertMsg("xguard.alerts", e)
	require.NoError(t, err)

	assert.Equal(t, "xguard.alerts", msg.Subject)
	assert.Equal(t, "b1c2", msg.Header.Get(nats.MsgIdHdr))
	assert.Equal(t, "URGENT", msg.Header.Get("Xguard-Severity"))

	var got model.AlertEvent
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, model.AlertPersonnelDistress, got.Type)
	assert.Equal(t, model.SeverityUrgent, got.Severity)
	assert.Equal(t, "breach_snapshots/x.jpg", got.EvidencePath)
	assert.Empty(t, got.EvidenceEncoded)
	assert.Equal(t, "bGFyZ2UgZnJhbWU=", e.EvidenceEncoded, "caller's event must be untouched")
}
