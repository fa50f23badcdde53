package scoring

import "fmt"

// Identity is the authenticated caller, supplied explicitly to every operation.
type Identity struct {
	UserID int64 `json:"userID"`
	Role   Role  `json:"role"`
}

func (id Identity) require(c Capability) error {
	if id.UserID <= 0 {
		return newError(CodePermissionDenied, "missing authenticated identity", nil)
	}
	if !id.Role.Can(c) {
		return newError(CodePermissionDenied, fmt.Sprintf("role %q lacks %s", id.Role, c), nil)
	}
	return nil
}
