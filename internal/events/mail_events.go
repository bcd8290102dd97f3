package events

import "time"

// SubjectVerificationMail is the default NATS subject for queued verification mails.
const SubjectVerificationMail = "mail.verification"

// VerificationMailRequested is the job a mailer worker turns into an email.
// It carries the plaintext code, so the subject must not be exposed outside
// the deployment.
type VerificationMailRequested struct {
	To            string    `json:"to"`
	Code          string    `json:"code"`
	ExpiresInMins int       `json:"expiresInMinutes"`
	RequestedAt   time.Time `json:"requestedAt"`
}
