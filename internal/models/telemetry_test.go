package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTelemetryEvent_Success(t *testing.T) {
	payload := []byte(`{"turbine_number": 1, "wind_speed": 45.60188548192473, "power_output_in_kwh": 2830.78964464337, "operational_status": "ok", "timestamp": 1704307285.2808006}`)

	ev, err := ParseTelemetryEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, 1, ev.TurbineNumber)
	assert.Equal(t, StatusHealthy, ev.Status)
	assert.InDelta(t, 45.6018, ev.WindSpeed, 0.001)
	assert.Equal(t, int64(1704307285), ev.Time().Unix())
}

func TestParseTelemetryEvent_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad json":       `{"turbine_number":`,
		"unknown status": `{"turbine_number": 1, "operational_status": "smoking", "timestamp": 1}`,
		"zero turbine":   `{"turbine_number": 0, "operational_status": "ok", "timestamp": 1}`,
		"negative time":  `{"turbine_number": 2, "operational_status": "broken", "timestamp": -1}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			ev, err := ParseTelemetryEvent([]byte(payload))
			assert.Nil(t, ev)
			var formatErr *DataFormatError
			assert.True(t, errors.As(err, &formatErr))
		})
	}
}

func TestUnixSeconds(t *testing.T) {
	ts := time.Unix(1704307285, 500_000_000)
	assert.InDelta(t, 1704307285.5, UnixSeconds(ts), 1e-6)
}
