package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChronologicalSplit(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		testRatio float64
		want      int
		wantErr   bool
	}{
		{"hundred rows ten percent", 100, 0.1, 90, false},
		{"uneven", 101, 0.1, 90, false},
		{"half", 10, 0.5, 5, false},
		{"ratio zero", 100, 0, 0, true},
		{"ratio one", 100, 1, 0, true},
		{"ratio negative", 100, -0.1, 0, true},
		{"too few rows", 1, 0.1, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ChronologicalSplit(tt.n, tt.testRatio)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
