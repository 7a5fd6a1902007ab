package supplier

import "encoding/json"

// FirstString returns the first non-empty string among the named keys of the
// record's raw view. Supplier endpoints disagree on field names, so callers
// express the fallback chain once instead of repeating conditionals.
func FirstString(r *ProductRecord, keys ...string) string {
	for _, key := range keys {
		raw, ok := r.raw[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if s != "" {
			return s
		}
	}
	return ""
}

// DisplayName resolves the record's best-available name.
func DisplayName(r *ProductRecord) string {
	return FirstString(r, "title", "name", "product_name")
}

// LongDescription resolves the record's best-available description.
func LongDescription(r *ProductRecord) string {
	return FirstString(r, "description", "desc", "long_description")
}

// ShortDescription resolves the record's best-available short description,
// falling back to the long one.
func ShortDescription(r *ProductRecord) string {
	if s := FirstString(r, "short_description", "short_desc"); s != "" {
		return s
	}
	return LongDescription(r)
}
