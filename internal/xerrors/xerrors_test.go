package xerrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sneldb/sneldb-sub000/internal/xerrors"
)

func TestIsCapacityExceeded(t *testing.T) {
	err := &xerrors.CapacityExceeded{Capacity: 10}
	require.True(t, xerrors.IsCapacityExceeded(err))
	require.False(t, xerrors.IsCapacityExceeded(errors.New("other")))
}

func TestIsIndexMissing(t *testing.T) {
	err := &xerrors.IndexMissing{Segment: "seg-1", Column: "status", Kind: "xf"}
	require.True(t, xerrors.IsIndexMissing(err))
	require.Contains(t, err.Error(), "seg-1")
}

func TestIsCorrupt(t *testing.T) {
	err := &xerrors.Corrupt{Segment: "seg-1", Detail: "bad checksum"}
	require.True(t, xerrors.IsCorrupt(err))
	require.Contains(t, err.Error(), "bad checksum")
}

func TestIoUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := &xerrors.Io{Op: "write column", Err: cause}
	require.ErrorIs(t, err, cause)
}

func TestFlushFailedUnwrap(t *testing.T) {
	cause := errors.New("rename failed")
	err := &xerrors.FlushFailed{Err: cause}
	require.ErrorIs(t, err, cause)
}

func TestNewSchemaError(t *testing.T) {
	err := xerrors.NewSchemaError("event type %q is not defined", "signup")
	require.Contains(t, err.Error(), "signup")
}
