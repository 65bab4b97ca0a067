package sanitize

// UnsupportedDtype is the dtype recorded for element types outside the
// numeric set.
const UnsupportedDtype = "Unsupported dtype"

var dtypes = map[string]bool{
	"int8":    true,
	"uint8":   true,
	"int16":   true,
	"uint16":  true,
	"int32":   true,
	"uint32":  true,
	"int64":   true,
	"uint64":  true,
	"float32": true,
	"float64": true,
}

// Dtype maps a Go element type name to its dtype. Only exact matches count:
// "int", "[]int32" or a compound type all give UnsupportedDtype.
func Dtype(goType string) string {
	if dtypes[goType] {
		return goType
	}
	return UnsupportedDtype
}
