package common

import "errors"

var kinds = []struct {
	err  error
	name string
}{
	{ErrorNotFound, "NotFound"},
	{ErrorInvalidState, "InvalidState"},
	{ErrorOutOfRange, "OutOfRange"},
	{ErrorInvalidArgument, "InvalidArgument"},
	{ErrorIntegrity, "IntegrityError"},
	{ErrorSizeMismatch, "SizeMismatch"},
	{ErrorAssemblyCorrupt, "AssemblyCorrupt"},
	{ErrorUpstreamFetch, "UpstreamFetchError"},
	{ErrorStorage, "StorageError"},
}

// KindOf returns the taxonomy name of err, e.g. "NotFound" or
// "IntegrityError". Errors outside the taxonomy report "Internal"; a nil
// error reports "".
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}

// ErrorForKind is the inverse of KindOf. Unknown names map to ErrorInternal.
func ErrorForKind(kind string) error {
	for _, k := range kinds {
		if k.name == kind {
			return k.err
		}
	}
	return ErrorInternal
}
