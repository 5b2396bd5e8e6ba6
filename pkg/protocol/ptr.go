package protocol

// Helpers for setting optional message fields.

func Uint32(v uint32) *uint32 { return &v }

func Uint64(v uint64) *uint64 { return &v }

func Int32(v int32) *int32 { return &v }

func Bool(v bool) *bool { return &v }

func String(v string) *string { return &v }

func Float32(v float32) *float32 { return &v }

// Value helpers return the zero value for an unset field.

func GetUint32(v *uint32) uint32 {
	if v == nil {
		return 0
	}
	return *v
}

func GetUint64(v *uint64) uint64 {
	if v == nil {
		return 0
	}
	return *v
}

func GetBool(v *bool) bool {
	if v == nil {
		return false
	}
	return *v
}

func GetString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
