package domain

// Principal is the authenticated caller of a protected endpoint: one account
// on one enrolled device, as established by the session token.
type Principal struct {
	StudentID string
	DeviceID  string
}

// IdentityAssertion is the verified content of an external identity token.
type IdentityAssertion struct {
	Subject string
	Email   string
	Name    string
}
