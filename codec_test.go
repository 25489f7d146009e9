package d1

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPrepareParams(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	got, err := prepareParams([]any{
		true, false, 7, uint8(8), int32(-9), 1.5, "text", []byte{0x1, 0x2}, nil, ts,
	})
	require.NoError(t, err)
	require.Equal(t, []any{
		int64(1), int64(0), int64(7), int64(8), int64(-9), 1.5, "text", []byte{0x1, 0x2}, nil, "2024-03-01T12:30:00Z",
	}, got)
}

func TestPrepareParamsEmpty(t *testing.T) {
	got, err := prepareParams(nil)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestPrepareParamsNamed(t *testing.T) {
	got, err := prepareParams([]any{
		NamedParam{Name: "id", Value: 3},
		NamedParam{Name: "active", Value: true},
	})
	require.NoError(t, err)
	require.Equal(t, []any{int64(3), int64(1)}, got)
}

func TestPrepareParamsRejectsMap(t *testing.T) {
	_, err := prepareParams([]any{map[string]any{"id": 1}})
	require.ErrorIs(t, err, ErrProgramming)
}

func TestConvertParamUint64Overflow(t *testing.T) {
	v, err := convertParam(uint64(math.MaxUint64))
	require.NoError(t, err)
	require.Equal(t, int64(math.MaxInt64), v)
}

func TestDecodeBool(t *testing.T) {
	for _, tc := range []struct {
		in   any
		want bool
	}{
		{int64(1), true},
		{int64(0), false},
		{float64(1), true},
		{true, true},
	} {
		got, err := DecodeBool(tc.in)
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}
	_, err := DecodeBool("yes")
	require.ErrorIs(t, err, ErrData)
}

func TestDecodeBlob(t *testing.T) {
	got, err := DecodeBlob("aGVsbG8=")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)

	got, err = DecodeBlob([]byte{0x1})
	require.NoError(t, err)
	require.Equal(t, []byte{0x1}, got)

	got, err = DecodeBlob(nil)
	require.NoError(t, err)
	require.Nil(t, got)

	_, err = DecodeBlob("!!not base64!!")
	require.ErrorIs(t, err, ErrData)

	_, err = DecodeBlob(int64(1))
	require.ErrorIs(t, err, ErrData)
}

func TestParseTimestamp(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want time.Time
	}{
		{"2024-03-01 12:30:45", time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)},
		{"2024-03-01T12:30:45.123456789", time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.UTC)},
		{"2024-03-01T12:30:45Z", time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)},
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-03-01 12:30", time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)},
	} {
		got, err := ParseTimestamp(tc.in)
		require.NoError(t, err, tc.in)
		require.True(t, got.Equal(tc.want), "parse %q: got %v", tc.in, got)
	}

	_, err := ParseTimestamp("not a time")
	require.ErrorIs(t, err, ErrData)
}
