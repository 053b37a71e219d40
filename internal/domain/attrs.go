package domain

// AttrMap is a free-form attribute map carried by chunks, relationships, and
// jobs. Collaborators use it for provenance-specific fields (import origin,
// OCR confidence, transformation parameters). Values are restricted to JSON
// scalars, arrays, and nested maps so the stored form stays queryable.
type AttrMap map[string]any

// ValidateAttrMap checks that every value in the map is a supported kind.
func ValidateAttrMap(attrs AttrMap) error {
	for key, value := range attrs {
		if key == "" {
			return ErrMissingRequiredField
		}
		if !isValidAttrValue(value) {
			return ErrInvalidAttrValue
		}
	}
	return nil
}

func isValidAttrValue(value any) bool {
	switch v := value.(type) {
	case nil, string, bool,
		int, int32, int64, float32, float64:
		return true
	case []any:
		for _, item := range v {
			if !isValidAttrValue(item) {
				return false
			}
		}
		return true
	case map[string]any:
		return ValidateAttrMap(AttrMap(v)) == nil
	case AttrMap:
		return ValidateAttrMap(v) == nil
	default:
		return false
	}
}

// Clone returns a shallow copy so callers can mutate without aliasing stored
// state. Nested maps and slices are shared.
func (a AttrMap) Clone() AttrMap {
	if a == nil {
		return nil
	}
	out := make(AttrMap, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
