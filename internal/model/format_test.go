package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatDecimal(t *testing.T) {
	tests := map[float64]string{
		500:     "500.0",
		497:     "497.0",
		399.5:   "399.5",
		491.27:  "491.27",
		0:       "0.0",
		-12:     "-12.0",
		0.0001:  "0.0001",
		0.00001: "1e-05",
		1e16:    "1e+16",
	}
	for in, want := range tests {
		require.Equal(t, want, FormatDecimal(in), "input %v", in)
	}
}
