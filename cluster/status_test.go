package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dexgo/codec"
)

func TestStatusRoundTrip(t *testing.T) {
	for _, s := range []JobStatus{StatusUnknown, StatusActive, StatusReady, StatusDead} {
		parsed, err := ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	_, err := ParseStatus("exploded")
	assert.Error(t, err)
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusUnknown.Terminal())
	assert.True(t, StatusReady.Terminal())
	assert.True(t, StatusDead.Terminal())
	assert.False(t, StatusActive.Terminal())
}

func TestStatusJSON(t *testing.T) {
	data, err := codec.Default.Marshal(JobResults{
		Status:    StatusActive,
		Locations: []string{"a", "b"},
	})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"active"`)

	var res JobResults
	require.NoError(t, codec.Default.Unmarshal(data, &res))
	assert.Equal(t, StatusActive, res.Status)
	assert.Equal(t, []string{"a", "b"}, res.Locations)

	// The two-word unknown form survives the trip as well.
	data, err = codec.Default.Marshal(JobResults{Status: StatusUnknown})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"unknown job"`)

	require.NoError(t, codec.Default.Unmarshal(data, &res))
	assert.Equal(t, StatusUnknown, res.Status)
}

func TestJobSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    JobSpec
		wantErr bool
	}{
		{
			name: "index ok",
			spec: JobSpec{Name: "dexgo:index@1", Kind: KindIndex, Inputs: []string{"in"}, NrIChunks: 4},
		},
		{
			name: "keys ok",
			spec: JobSpec{Name: "dexgo:keys@1", Kind: KindKeys, Inputs: []string{"c0"}},
		},
		{
			name: "query ok",
			spec: JobSpec{Name: "dexgo:query@1", Kind: KindQuery, Inputs: []string{"c0"}, Query: "a|b"},
		},
		{
			name:    "empty name",
			spec:    JobSpec{Kind: KindKeys, Inputs: []string{"c0"}},
			wantErr: true,
		},
		{
			name:    "no inputs",
			spec:    JobSpec{Name: "j", Kind: KindIndex},
			wantErr: true,
		},
		{
			name:    "query without expression",
			spec:    JobSpec{Name: "j", Kind: KindQuery, Inputs: []string{"c0"}},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			spec:    JobSpec{Name: "j", Kind: "compact", Inputs: []string{"c0"}},
			wantErr: true,
		},
		{
			name:    "negative chunk count",
			spec:    JobSpec{Name: "j", Kind: KindIndex, Inputs: []string{"in"}, NrIChunks: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSpec)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
