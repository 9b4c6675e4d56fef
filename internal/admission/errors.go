package admission

import "errors"

// Rejection causes surfaced to callers. Lookup internals are never exposed;
// callers see only which reference failed to resolve.
var (
	ErrInvalidUser = errors.New("user does not exist")
	ErrInvalidItem = errors.New("item does not exist")
)
