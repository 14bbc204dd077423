package archive

import "errors"

// Job failure kinds. They are wrapped with context and never escape the job that produced them.
var (
	ErrNetwork        = errors.New("network error")
	ErrStoreWrite     = errors.New("store write failed")
	ErrPathDerivation = errors.New("archive path derivation failed")
	ErrSpawn          = errors.New("spawn failed")
	ErrRelocation     = errors.New("relocation failed")
	ErrJobPanic       = errors.New("job panicked")
)
