package forecast

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// KeySeparator joins the parts of an identity key
const KeySeparator = "_"

var (
	// ErrInvalidIdentifier is returned for session ids that are empty or
	// contain KeySeparator, which would make keys ambiguous.
	ErrInvalidIdentifier = errors.New("invalid session identifier")
	// ErrInvalidSlot is returned for day or block indexes outside the horizon
	ErrInvalidSlot = errors.New("invalid block coordinates")
)

// ValidateSessionID reports whether id can be used to build identity keys
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	if strings.Contains(id, KeySeparator) {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidIdentifier, id, KeySeparator)
	}
	return nil
}

// IdentityKey builds the storage key session_day_block. Equal inputs always
// give equal keys and distinct valid inputs never collide.
func IdentityKey(sessionID string, dayIndex, blockIndex int) (string, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return "", err
	}
	if dayIndex < 1 || dayIndex > MaxForecastDays {
		return "", fmt.Errorf("%w: day %d", ErrInvalidSlot, dayIndex)
	}
	if blockIndex < 1 || blockIndex > BlocksPerDay {
		return "", fmt.Errorf("%w: block %d", ErrInvalidSlot, blockIndex)
	}

	return sessionID + KeySeparator + strconv.Itoa(dayIndex) + KeySeparator + strconv.Itoa(blockIndex), nil
}
