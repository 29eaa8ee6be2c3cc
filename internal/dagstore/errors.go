package dagstore

import "github.com/pkg/errors"

// Admission failure modes. All are
// permanent rejections; callers must not requeue the offending block.
var (
	ErrParentUnknown          = errors.New("ParentUnknown")
	ErrParentsNotAllKnown     = errors.New("ParentsNotAllKnown")
	ErrTimestampOutOfRange    = errors.New("TimestampOutOfRange")
	ErrSelectedParentMismatch = errors.New("SelectedParentMismatch")
	ErrBlueScoreInconsistent  = errors.New("BlueScoreInconsistent")
	ErrFinalityViolation      = errors.New("FinalityViolation")
	ErrSignatureInvalid       = errors.New("SignatureInvalid")
	ErrValidationTimeout      = errors.New("ValidationTimeout")

	// ErrBlockNotFound is a query-path error (not an admission failure
	// mode), returned by Header/Parents/etc for an unknown hash.
	ErrBlockNotFound = errors.New("block not found")
)
