package features

import "errors"

var (
	// ErrUnseenCategory is returned by strict lookups for a value absent at fit time.
	ErrUnseenCategory = errors.New("unseen category")
	// ErrNoNumericClasses means a nearest-class fallback found no integer-like class.
	ErrNoNumericClasses = errors.New("no integer-like classes to fall back to")
	// ErrUnknownColumn is returned when a registry or scaler has no entry for a column.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrArtifactsMissing means the fitted encoders or scaler could not be loaded.
	ErrArtifactsMissing = errors.New("fitted artifacts missing")
	// ErrLayoutMismatch means persisted artifacts were fitted for a different column layout.
	ErrLayoutMismatch = errors.New("artifact column layout mismatch")
	// ErrNoSamples is returned when fitting on an empty dataset.
	ErrNoSamples = errors.New("no samples to fit")
)
