package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseReading(t *testing.T) {
	tests := []struct {
		payload string
		want    Reading
	}{
		{"4.5", Reading{Value: 4.5, OK: true}},
		{"  72 ", Reading{Value: 72, OK: true}},
		{"-0.25", Reading{Value: -0.25, OK: true}},
		{"+3", Reading{Value: 3, OK: true}},
		{"1e3", Reading{Value: 1000, OK: true}},
		{"0", Reading{Value: 0, OK: true}},
		{".5", Reading{Value: 0.5, OK: true}},
		{"5.", Reading{Value: 5, OK: true}},
		{"-.5e1", Reading{Value: -5, OK: true}},
		{"4.5 Richter", Reading{Value: 4.5, OK: true}},
		{"1_0", Reading{Value: 1, OK: true}},
		{"0x1p2", Reading{Value: 0, OK: true}},
		{"1,5", Reading{Value: 1, OK: true}},
		{"2e", Reading{Value: 2, OK: true}},
		{"2e+", Reading{Value: 2, OK: true}},
		{"7E-1x", Reading{Value: 0.7, OK: true}},
		{"1e-400", Reading{Value: 0, OK: true}},
		{"", Reading{}},
		{"abc", Reading{}},
		{".", Reading{}},
		{"-", Reading{}},
		{"+.e1", Reading{}},
		{"NaN", Reading{}},
		{"Inf", Reading{}},
		{"Infinity", Reading{}},
		{"-Infinity", Reading{}},
		{"1e400", Reading{}},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseReading(tt.payload))
		})
	}
}
