package domain

// ContactInfo is an immutable bundle of a student's contact details.
// All fields are optional; changes produce a new value.
type ContactInfo struct {
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// NewContactInfo builds a contact info value.
func NewContactInfo(email, phone, address string) ContactInfo {
	return ContactInfo{Email: email, Phone: phone, Address: address}
}

// WithEmail returns a copy with the email replaced.
func (c ContactInfo) WithEmail(email string) ContactInfo {
	c.Email = email
	return c
}

// WithPhone returns a copy with the phone replaced.
func (c ContactInfo) WithPhone(phone string) ContactInfo {
	c.Phone = phone
	return c
}

// WithAddress returns a copy with the address replaced.
func (c ContactInfo) WithAddress(address string) ContactInfo {
	c.Address = address
	return c
}
