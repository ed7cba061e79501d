package mailer

import "fmt"

// VerificationMessage renders the email-verification message for the given
// recipient and link.
func VerificationMessage(to, name, link string) *Message {
	return &Message{
		To:      to,
		ToName:  name,
		Subject: "Verify your email address",
		Body: fmt.Sprintf(
			"Hi %s,\n\nPlease confirm your email address by following this link:\n\n%s\n\nThe link is valid for 24 hours. If you did not create an account, you can ignore this message.\n",
			name, link,
		),
	}
}

// RecoveryMessage renders the password-recovery message for the given
// recipient and link.
func RecoveryMessage(to, name, link string) *Message {
	return &Message{
		To:      to,
		ToName:  name,
		Subject: "Password recovery",
		Body: fmt.Sprintf(
			"Hi %s,\n\nA password reset was requested for your account. Follow this link to choose a new password:\n\n%s\n\nIf you did not request a reset, you can ignore this message.\n",
			name, link,
		),
	}
}
