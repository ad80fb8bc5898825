package mixtures

import (
	"github.com/pkg/errors"
)

// Family enumerates the supported covariance parameterizations of a mixture
// model. It is a closed set: LookupFamily and New match it exhaustively, and
// recognized-but-unimplemented families fail at construction time rather than
// silently defaulting.
type Family int

const (
	// FamilyFull parameterizes each component covariance with a full
	// lower-triangular factor: fully expressive eigenvalues.
	FamilyFull Family = iota

	// FamilyDiagonal restricts eigenvalues to align with the data axes.
	FamilyDiagonal

	// FamilyIsotropic would use the same variance for all directions.
	// Recognized but not implemented.
	FamilyIsotropic

	// FamilySharedIsotropic would use the same variance for all directions
	// and components. Recognized but not implemented.
	FamilySharedIsotropic

	// FamilyConstant would keep sigma fixed, not learned. Recognized but not
	// implemented.
	FamilyConstant
)

// familyTags holds the string tag of each family, indexed by the Family value.
var familyTags = []string{"full", "diagonal", "isotropic", "shared_isotropic", "constant"}

// String returns the family's string tag, e.g. "full".
func (f Family) String() string {
	if f < 0 || int(f) >= len(familyTags) {
		return "invalid"
	}
	return familyTags[f]
}

// FamilyNames returns the string tags of all declared families, implemented
// or not.
func FamilyNames() []string {
	names := make([]string, len(familyTags))
	copy(names, familyTags)
	return names
}

// LookupFamily maps a string tag to its Family. Matching is exact and
// case-sensitive; an unknown tag yields an error listing the valid ones.
func LookupFamily(name string) (Family, error) {
	for f, tag := range familyTags {
		if tag == name {
			return Family(f), nil
		}
	}
	return 0, errors.Errorf("unknown mixture family %q, please select from %v", name, familyTags)
}

// New constructs the concrete mixture model for the given family. Families
// without an implementation (isotropic, shared_isotropic, constant) return a
// "not implemented" error naming the family.
func New(family Family, config Config) (Model, error) {
	switch family {
	case FamilyFull:
		return NewFull(config)
	case FamilyDiagonal:
		return NewDiagonal(config)
	case FamilyIsotropic, FamilySharedIsotropic, FamilyConstant:
		return nil, errors.Errorf("mixture family %q not implemented yet", family)
	default:
		return nil, errors.Errorf("unknown mixture family %d, please select from %v", int(family), familyTags)
	}
}

// NewByName is a convenience for New(LookupFamily(name), config).
func NewByName(name string, config Config) (Model, error) {
	family, err := LookupFamily(name)
	if err != nil {
		return nil, err
	}
	return New(family, config)
}
