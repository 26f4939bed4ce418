package domain

// constError is an immutable error type for sentinel errors.
type constError string

func (e constError) Error() string { return string(e) }

// Configuration errors returned while building stage models and crop profiles.
// Compare with errors.Is; constructors wrap them with the offending crop name.
var (
	// ErrKcOutOfRange indicates a stage coefficient above MaxKc.
	ErrKcOutOfRange = constError("Kc cannot exceed 2")

	// ErrNegativeThreshold indicates a stage boundary below zero.
	ErrNegativeThreshold = constError("stage threshold must not be negative")

	// ErrEmptyCropName indicates a profile without a crop name.
	ErrEmptyCropName = constError("crop name is required")
)

// Observation errors returned by ParseObservation and BuildKcRecord.
var (
	ErrUnknownCrop    = constError("unknown crop")
	ErrNoPlantingDate = constError("no planting date for field")
	ErrMissingFieldID = constError("field_id is required")
	ErrMissingCrop    = constError("crop is required")
	ErrMissingDate    = constError("date is required")
	ErrInvalidDate    = constError("invalid date")

	// ErrInvalidFactor indicates a wind speed, humidity or canopy height that
	// is negative or not finite.
	ErrInvalidFactor = constError("environmental factor must be finite and not negative")
)
