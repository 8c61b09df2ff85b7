package event

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestType_String(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{ScanStarted, "ScanStarted"},
		{FileSkipped, "FileSkipped"},
		{FileArchived, "FileArchived"},
		{EncodeComplete, "EncodeComplete"},
		{DigestComplete, "DigestComplete"},
		{EncryptComplete, "EncryptComplete"},
		{StateSaved, "StateSaved"},
		{VerifyFailed, "VerifyFailed"},
		{0, "Unknown"},
		{-3, "Unknown"},
		{VerifyFailed + 1, "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.String())
		})
	}
}

func TestType_EveryConstantNamed(t *testing.T) {
	for typ := ScanStarted; typ <= VerifyFailed; typ++ {
		assert.NotEqual(t, "Unknown", typ.String(), "type %d", int(typ))
	}
}

func TestEmit_StampsAndPreservesOrder(t *testing.T) {
	ch := make(chan Event, 4)
	fixed := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	failure := errors.New("short read")

	Emit(ch, Event{Type: ScanComplete, Total: 2, TotalSize: 3072})
	Emit(ch, Event{Type: FileArchived, Path: "docs/a.txt", Size: 1024})
	Emit(ch, Event{Type: FileSkipped, Path: "docs/b.txt", Error: failure})
	Emit(ch, Event{Type: StateSaved, Timestamp: fixed})
	close(ch)

	var got []Event
	for e := range ch {
		got = append(got, e)
	}
	if assert.Len(t, got, 4) {
		assert.Equal(t, ScanComplete, got[0].Type)
		assert.Equal(t, int64(3072), got[0].TotalSize)
		assert.Equal(t, "docs/a.txt", got[1].Path)
		assert.ErrorIs(t, got[2].Error, failure)
		assert.Equal(t, fixed, got[3].Timestamp)
		for _, e := range got[:3] {
			assert.False(t, e.Timestamp.IsZero(), e.Type.String())
		}
	}
}

func TestEmit_NilChannelDrops(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(nil, Event{Type: VerifyOK, Path: "music.tar.zst"})
	})
}
