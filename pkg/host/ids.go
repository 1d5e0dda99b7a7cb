package host

import "github.com/google/uuid"

// idNamespace scopes name-based memory ids to this host contract.
var idNamespace = uuid.MustParse("8b1f6a3e-2c4d-5e7f-9a0b-1c2d3e4f5a6b")

// StringToUUID derives a stable UUID from s. The same input always yields
// the same id, which lets callers write records idempotently.
func StringToUUID(s string) uuid.UUID {
	return uuid.NewSHA1(idNamespace, []byte(s))
}
