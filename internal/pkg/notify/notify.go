package notify

// Mailer sends the transactional email the auth and invitation flows depend
// on. Implementations must be safe for concurrent use.
type Mailer interface {
	// SendPasswordReset delivers a reset link for the given single-use token.
	SendPasswordReset(toEmail, token string) error

	// SendInvitation delivers an invitation to collaborate on a task with the
	// given role; the token is redeemed by the acceptance endpoint.
	SendInvitation(toEmail, taskTitle, role, token string) error
}
