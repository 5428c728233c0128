package models

import "errors"

// Chain and registry errors. Callers add detail with fmt.Errorf("...: %w", Err...)
// and classify with errors.Is or KindOf.
var (
	ErrInvalidDistance          = errors.New("invalid distance")
	ErrInvalidStation           = errors.New("invalid station")
	ErrDuplicateSection         = errors.New("up and down stations already present on line")
	ErrDisconnectedSection      = errors.New("neither up nor down station is on line")
	ErrStationNotFound          = errors.New("station not found")
	ErrSingleSectionUnremovable = errors.New("cannot remove station from a line with a single section")
	ErrMalformedChain           = errors.New("malformed section chain")

	ErrInvalidLine          = errors.New("invalid line")
	ErrLineNotFound         = errors.New("line not found")
	ErrDuplicateLineName    = errors.New("line name already exists")
	ErrDuplicateStationName = errors.New("station name already exists")
	ErrStationInUse         = errors.New("station is used by a line")
	ErrStaleLine            = errors.New("line was modified by another writer")
)

// ErrorKind is a coarse classification used at the transport boundary.
type ErrorKind string

const (
	KindInvalidInput ErrorKind = "invalid_input"
	KindConflict     ErrorKind = "conflict"
	KindNotFound     ErrorKind = "not_found"
	KindInternal     ErrorKind = "internal"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidDistance, KindInvalidInput},
	{ErrInvalidStation, KindInvalidInput},
	{ErrInvalidLine, KindInvalidInput},
	{ErrDuplicateSection, KindInvalidInput},
	{ErrDisconnectedSection, KindInvalidInput},
	{ErrSingleSectionUnremovable, KindInvalidInput},
	{ErrStationNotFound, KindNotFound},
	{ErrLineNotFound, KindNotFound},
	{ErrDuplicateLineName, KindConflict},
	{ErrDuplicateStationName, KindConflict},
	{ErrStationInUse, KindConflict},
	{ErrStaleLine, KindConflict},
	{ErrMalformedChain, KindInternal},
}

// KindOf reports the kind of a registry error. Unknown errors are internal.
func KindOf(err error) ErrorKind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
