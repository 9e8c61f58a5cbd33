package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionalFloatUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    OptionalFloat
		wantErr bool
	}{
		{name: "number", input: `1.5`, want: Float(1.5)},
		{name: "negative number", input: `-3`, want: Float(-3)},
		{name: "numeric string", input: `"2.25"`, want: Float(2.25)},
		{name: "padded numeric string", input: `" 7 "`, want: Float(7)},
		{name: "empty string is absent", input: `""`, want: OptionalFloat{}},
		{name: "null is absent", input: `null`, want: OptionalFloat{}},
		{name: "zero is present", input: `0`, want: Float(0)},
		{name: "garbage string", input: `"abc"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got OptionalFloat
			err := json.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOptionalFloatAbsentNeverBecomesZero(t *testing.T) {
	var f OptionalFloat
	require.NoError(t, json.Unmarshal([]byte(`""`), &f))

	out, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Equal(t, `""`, string(out), "absent must serialize as the empty string, not 0")

	// Round-tripping the serialized form must stay absent.
	var again OptionalFloat
	require.NoError(t, json.Unmarshal(out, &again))
	assert.False(t, again.Defined)
}

func TestOptionalFloatZeroSurvivesRoundTrip(t *testing.T) {
	out, err := json.Marshal(Float(0))
	require.NoError(t, err)
	assert.Equal(t, `0`, string(out))

	var back OptionalFloat
	require.NoError(t, json.Unmarshal(out, &back))
	assert.True(t, back.Defined)
	assert.Zero(t, back.Value)
}

func TestOptionalBoolUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    OptionalBool
		wantErr bool
	}{
		{name: "true", input: `true`, want: Bool(true)},
		{name: "false", input: `false`, want: Bool(false)},
		{name: "string true", input: `"true"`, want: Bool(true)},
		{name: "string TRUE", input: `"TRUE"`, want: Bool(true)},
		{name: "string false", input: `"false"`, want: Bool(false)},
		{name: "one", input: `1`, want: Bool(true)},
		{name: "zero", input: `0`, want: Bool(false)},
		{name: "string one", input: `"1"`, want: Bool(true)},
		{name: "empty string is absent", input: `""`, want: OptionalBool{}},
		{name: "null is absent", input: `null`, want: OptionalBool{}},
		{name: "garbage", input: `"maybe"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got OptionalBool
			err := json.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOptionalBoolAbsentMarshalsAsEmptyString(t *testing.T) {
	out, err := json.Marshal(OptionalBool{})
	require.NoError(t, err)
	assert.Equal(t, `""`, string(out))

	out, err = json.Marshal(Bool(false))
	require.NoError(t, err)
	assert.Equal(t, `false`, string(out), "explicit false must not collapse into absent")
}

func TestParseWireTime(t *testing.T) {
	for _, raw := range []string{
		"2024-06-01T12:30:00Z",
		"2024-06-01T12:30:00.123456Z",
		"2024-06-01T12:30:00.000-0700",
		"2024-06-01T12:30:00",
		"2024-06-01 12:30:00",
	} {
		t.Run(raw, func(t *testing.T) {
			got, err := ParseWireTime(raw)
			require.NoError(t, err)
			assert.False(t, got.IsZero())
		})
	}

	empty, err := ParseWireTime("")
	require.NoError(t, err)
	assert.True(t, empty.IsZero())

	_, err = ParseWireTime("last tuesday")
	assert.Error(t, err)
}

func TestWireTimeZeroRoundTripsToEmptyString(t *testing.T) {
	out, err := json.Marshal(WireTime{})
	require.NoError(t, err)
	assert.Equal(t, `""`, string(out))

	var back WireTime
	require.NoError(t, json.Unmarshal(out, &back))
	assert.True(t, back.IsZero())
}
