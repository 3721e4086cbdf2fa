package helpers

// Float64Pointer returns a pointer to the given float64 value.
func Float64Pointer(f float64) *float64 {
	return &f
}
