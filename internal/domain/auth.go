package domain

// Identity is a verified caller.
type Identity struct {
	SubjectID string
	Role      Role
}
