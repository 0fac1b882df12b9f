package xorfilter_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sneldb/sneldb-sub000/internal/zone/xorfilter"
)

func TestBuild_ContainsAllMembers(t *testing.T) {
	digests := make([]uint64, 0, 500)
	seen := map[uint64]struct{}{}
	for i := 0; i < 500; i++ {
		d := xorfilter.HashBytes([]byte(fmt.Sprintf("value-%d", i)))
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		digests = append(digests, d)
	}

	f, err := xorfilter.Build(digests)
	require.NoError(t, err)

	for _, d := range digests {
		require.True(t, f.Contains(d))
	}
}

func TestBuild_NonMembersMostlyRejected(t *testing.T) {
	digests := make([]uint64, 0, 200)
	for i := 0; i < 200; i++ {
		digests = append(digests, xorfilter.HashBytes([]byte(fmt.Sprintf("member-%d", i))))
	}
	f, err := xorfilter.Build(digests)
	require.NoError(t, err)

	falsePositives := 0
	for i := 0; i < 1000; i++ {
		d := xorfilter.HashBytes([]byte(fmt.Sprintf("absent-%d", i)))
		if f.Contains(d) {
			falsePositives++
		}
	}
	require.Less(t, falsePositives, 100, "false positive rate should stay well under 10%%")
}

func TestBuild_Empty(t *testing.T) {
	f, err := xorfilter.Build(nil)
	require.NoError(t, err)
	require.False(t, f.Contains(xorfilter.HashBytes([]byte("anything"))))
}

func TestBytesRoundTrip(t *testing.T) {
	digests := []uint64{
		xorfilter.HashBytes([]byte("a")),
		xorfilter.HashBytes([]byte("b")),
		xorfilter.HashBytes([]byte("c")),
	}
	f, err := xorfilter.Build(digests)
	require.NoError(t, err)

	raw := f.Bytes()
	f2, err := xorfilter.FromBytes(raw)
	require.NoError(t, err)

	for _, d := range digests {
		require.True(t, f2.Contains(d))
	}
}

func TestFromBytes_Truncated(t *testing.T) {
	_, err := xorfilter.FromBytes([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestContains_NilFilter(t *testing.T) {
	var f *xorfilter.Filter
	require.False(t, f.Contains(123))
}
