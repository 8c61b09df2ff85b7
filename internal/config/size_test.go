package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "0", want: 0},
		{in: "4096", want: 4096},
		{in: "100b", want: 100},
		{in: "64k", want: 64 << 10},
		{in: "64KB", want: 64 << 10},
		{in: "50M", want: 50 << 20},
		{in: "10MB", want: 10 << 20},
		{in: "1MiB", want: 1 << 20},
		{in: "1.5G", want: 3 << 29},
		{in: "0.5m", want: 512 << 10},
		{in: "2T", want: 2 << 40},
		{in: " 2k ", want: 2048},

		{in: "", wantErr: true},
		{in: "fast", wantErr: true},
		{in: "K", wantErr: true},
		{in: "MB", wantErr: true},
		{in: "iB", wantErr: true},
		{in: "-5M", wantErr: true},
		{in: "-0.5", wantErr: true},
		{in: "10 GB", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
