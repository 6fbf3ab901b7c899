package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	payload := map[string]interface{}{"contractId": "c-1", "status": "LATE_PAYMENT"}

	before := time.Now()
	evt := NewEvent(EventTypeStatusChanged, EntityTypeContract, payload)
	after := time.Now()

	assert.Equal(t, "contract.status_changed", evt.Type)
	assert.Equal(t, EntityTypeContract, evt.Entity)
	assert.Equal(t, payload, evt.Payload)
	assert.True(t, !evt.Timestamp.Before(before) && !evt.Timestamp.After(after))
}

func TestEventConstructors(t *testing.T) {
	tests := []struct {
		name     string
		evt      Event
		expected string
	}{
		{"status changed", ContractStatusChanged(nil), "contract.status_changed"},
		{"schedule regenerated", ContractScheduleRegenerated(nil), "contract.schedule_regenerated"},
		{"settled", ContractSettled(nil), "contract.settled"},
		{"refresh completed", DebtStatusRefreshCompleted(nil), "debt_status_refresh.completed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.evt.Type)
		})
	}
}

func TestEvent_ToJSON(t *testing.T) {
	evt := ContractSettled(map[string]interface{}{"payoff": "5400000"})

	data, err := evt.ToJSON()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "contract.settled", decoded["type"])
	assert.Equal(t, "contract", decoded["entity"])
	assert.Contains(t, decoded, "timestamp")
	assert.Equal(t, "5400000", decoded["payload"].(map[string]interface{})["payoff"])
}
