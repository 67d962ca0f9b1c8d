package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeReadings(t *testing.T) {
	t.Run("single object", func(t *testing.T) {
		readings, err := DecodeReadings([]byte(`{"depth": 3.9, "location": "Ruta demo", "source": "HC-05", "raw": "BACHE 3.90"}`))
		require.NoError(t, err)
		require.Len(t, readings, 1)

		r := readings[0]
		assert.True(t, r.Valid())
		assert.Equal(t, 3.9, r.Depth)
		require.NotNil(t, r.Location)
		assert.Equal(t, "Ruta demo", *r.Location)
		require.NotNil(t, r.Raw)
		assert.Equal(t, "BACHE 3.90", *r.Raw)
		assert.Nil(t, r.ID)
		assert.Nil(t, r.Severity)
	})

	t.Run("array with invalid entries", func(t *testing.T) {
		body := `[
			{"depth": 1.5},
			{"depth": "2.5"},
			{"depth": null},
			{"location": "sin profundidad"},
			{"depth": 1e999},
			{"depth": -2},
			42,
			{"depth": 4, "location": 7},
			{"depth": 0}
		]`
		readings, err := DecodeReadings([]byte(body))
		require.NoError(t, err)
		require.Len(t, readings, 9)

		valid := make([]bool, len(readings))
		for i, r := range readings {
			valid[i] = r.Valid()
		}
		assert.Equal(t, []bool{true, false, false, false, false, false, false, false, true}, valid)
	})

	t.Run("supplied severity", func(t *testing.T) {
		readings, err := DecodeReadings([]byte(`[{"depth": 1, "severity": "Alta"}, {"depth": 1, "severity": "grave"}]`))
		require.NoError(t, err)
		require.NotNil(t, readings[0].Severity)
		assert.Equal(t, SeverityHigh, *readings[0].Severity)
		assert.Nil(t, readings[1].Severity)
	})

	t.Run("empty array", func(t *testing.T) {
		readings, err := DecodeReadings([]byte(`[]`))
		require.NoError(t, err)
		assert.Empty(t, readings)
	})

	for name, body := range map[string]string{
		"empty":         "",
		"whitespace":    "   ",
		"malformed":     `{"depth": `,
		"broken array":  `[{"depth": 1},`,
		"trailing junk": `{"depth": 1} x`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeReadings([]byte(body))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestReading_MarshalJSON(t *testing.T) {
	r := NewReading(3.9)
	r.Location = ptr("Ruta demo")
	r.Severity = ptr(SeverityLow)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"depth": 3.9, "location": "Ruta demo", "severity": "Baja"}`, string(data))

	var back Reading
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, r, back)
}

func TestReading_MarshalJSON_InvalidDepthOmitted(t *testing.T) {
	data, err := json.Marshal(Reading{Source: ptr("USB")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"source": "USB"}`, string(data))
}

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected float64
		wantErr  bool
	}{
		{"standard", "BACHE 3.90", 3.9, false},
		{"crlf residue", "BACHE 2.4\r", 2.4, false},
		{"extra spaces", "  BACHE   4.6  ", 4.6, false},
		{"bare number", "1.4", 1.4, false},
		{"integer", "BACHE 5", 5, false},
		{"missing depth", "BACHE", 0, true},
		{"empty", "", 0, true},
		{"text", "BACHE abc", 0, true},
		{"nan", "BACHE NaN", 0, true},
		{"inf", "BACHE +Inf", 0, true},
		{"negative", "BACHE -1.2", 0, true},
		{"out of range", "BACHE 1e308", 0, true},
		{"other marker", "DISTANCIA 8.5", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFrame(tt.line)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidFrame)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFormatFrame(t *testing.T) {
	assert.Equal(t, "BACHE 3.90", FormatFrame(3.9))
	assert.Equal(t, "BACHE 0.00", FormatFrame(0))
}
