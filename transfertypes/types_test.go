package transfertypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_CanTransition(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{"pending to initiated", StatePending, StateInitiated, true},
		{"initiated to in flight", StateInitiated, StatePartsInFlight, true},
		{"in flight to completing", StatePartsInFlight, StateCompleting, true},
		{"completing to done", StateCompleting, StateDone, true},
		{"completing to aborting", StateCompleting, StateAborting, true},
		{"aborting to failed", StateAborting, StateFailed, true},
		{"pending to aborting", StatePending, StateAborting, true},
		{"in flight to done skips completing", StatePartsInFlight, StateDone, false},
		{"aborting to done", StateAborting, StateDone, false},
		{"backwards", StateCompleting, StatePartsInFlight, false},
		{"same state", StatePartsInFlight, StatePartsInFlight, false},
		{"done is terminal", StateDone, StateFailed, false},
		{"failed is terminal", StateFailed, StateDone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "PARTS_IN_FLIGHT", StatePartsInFlight.String())
	assert.Equal(t, "State(42)", State(42).String())
}

func TestSnapshot_Percent(t *testing.T) {
	assert.Equal(t, 0.0, Snapshot{BytesTransferred: 10, TotalBytes: -1}.Percent())
	assert.Equal(t, 50.0, Snapshot{BytesTransferred: 5, TotalBytes: 10}.Percent())
	assert.Equal(t, 100.0, Snapshot{BytesTransferred: 10, TotalBytes: 10}.Percent())
}

func TestResumeToken_RoundTrip(t *testing.T) {
	tok := &ResumeToken{
		Version:   ResumeTokenVersion,
		Direction: DirectionUpload,
		Bucket:    "bucket",
		Key:       "key",
		UploadID:  "upload-1",
		PartSize:  2,
		TotalSize: 6,
		Parts: []CompletedPart{
			{Number: 3, Size: 2, Token: "c"},
			{Number: 1, Size: 2, Token: "a"},
		},
	}

	data, err := tok.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalResumeToken(data)
	require.NoError(t, err)
	assert.Equal(t, []CompletedPart{{Number: 1, Size: 2, Token: "a"}, {Number: 3, Size: 2, Token: "c"}}, got.Parts)
	assert.Equal(t, int64(4), got.CompletedBytes())
	// Marshal must not reorder the caller's slice.
	assert.Equal(t, 3, tok.Parts[0].Number)
}

func TestResumeToken_Validate(t *testing.T) {
	valid := func() *ResumeToken {
		return &ResumeToken{
			Version:   ResumeTokenVersion,
			Direction: DirectionUpload,
			Bucket:    "bucket",
			Key:       "key",
			UploadID:  "id",
			PartSize:  1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*ResumeToken)
		wantErr bool
	}{
		{"valid", func(*ResumeToken) {}, false},
		{"bad version", func(t *ResumeToken) { t.Version = 99 }, true},
		{"bad direction", func(t *ResumeToken) { t.Direction = "sideways" }, true},
		{"missing key", func(t *ResumeToken) { t.Key = "" }, true},
		{"upload without id", func(t *ResumeToken) { t.UploadID = "" }, true},
		{"download without id", func(t *ResumeToken) { t.UploadID = ""; t.Direction = DirectionDownload }, false},
		{"zero part size", func(t *ResumeToken) { t.PartSize = 0 }, true},
		{"duplicate parts", func(t *ResumeToken) { t.Parts = []CompletedPart{{Number: 1}, {Number: 1}} }, true},
		{"part zero", func(t *ResumeToken) { t.Parts = []CompletedPart{{Number: 0}} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := valid()
			tt.mutate(tok)
			err := tok.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUnmarshalResumeToken_Garbage(t *testing.T) {
	_, err := UnmarshalResumeToken([]byte("{"))
	assert.Error(t, err)
}
