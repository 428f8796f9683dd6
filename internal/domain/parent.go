package domain

// ParentInfo describes one guardian of a student. A parent record belongs to
// exactly one student; identity is positional, duplicates are allowed.
// Scalar field validity (required fields, email format) is checked at the
// application layer before the value reaches the aggregate.
type ParentInfo struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Phone        string `json:"phone"`
	Email        string `json:"email,omitempty"`
	Occupation   string `json:"occupation,omitempty"`
	WorkPlace    string `json:"work_place,omitempty"`
	IsPrimary    bool   `json:"is_primary"`
}
