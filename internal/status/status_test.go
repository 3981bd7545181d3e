package status

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		token string
		want  Status
	}{
		{"active running", Running},
		{"ACTIVE (running)", Running},
		{"active", Active},
		{"active exited", Active},
		{"dead", Inactive},
		{"failed", Failed},
		{"exited", Stopped},
		{"suspended", Suspended},
		{"running", Running},
		{"stopped", Stopped},
		{"Stopped", Stopped},
		{"garbage", Inactive},
		{"", Inactive},
		// "inactive" contains "active" and the active rule wins.
		{"inactive", Active},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.token))
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	for i := 0; i < 3; i++ {
		assert.Equal(t, Failed, Classify("failed"))
	}
}

func TestFromUnitStates(t *testing.T) {
	assert.Equal(t, Running, FromUnitStates("active", "running"))
	assert.Equal(t, Active, FromUnitStates("active", "exited"))
	assert.Equal(t, Inactive, FromUnitStates("inactive", "dead"))
	assert.Equal(t, Failed, FromUnitStates("failed", "failed"))
	assert.Equal(t, Stopped, FromUnitStates("activating", "exited"))
	assert.Equal(t, Inactive, FromUnitStates("reloading", "auto-restart"))
}

func TestStringStableAndNonEmpty(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range All {
		l := s.String()
		require.NotEmpty(t, l)
		assert.Equal(t, l, s.String())
		assert.False(t, seen[l], "duplicate label %s", l)
		seen[l] = true
	}
	assert.Equal(t, "UNKNOWN", Status(42).String())
	assert.False(t, Status(-1).Valid())
}

func TestParseRoundTrip(t *testing.T) {
	for _, s := range All {
		got, err := Parse(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	got, err := Parse(" failed ")
	require.NoError(t, err)
	assert.Equal(t, Failed, got)

	_, err = Parse("bogus")
	assert.Error(t, err)
}

func TestJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		S Status `json:"s"`
	}{Running})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"RUNNING"}`, string(b))

	var out struct {
		S Status `json:"s"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"s":"suspended"}`), &out))
	assert.Equal(t, Suspended, out.S)
	assert.Error(t, json.Unmarshal([]byte(`{"s":"nope"}`), &out))
}
