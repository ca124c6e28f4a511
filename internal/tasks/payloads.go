package tasks

import "time"

// PasswordResetEmailPayload carries the raw reset token; only its hash is
// kept in password_resets.
type PasswordResetEmailPayload struct {
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expiresAt"`
	RequestedAt time.Time `json:"requestedAt"`
}

// ApplicationReceivedPayload tells an employer someone applied to one of
// their jobs. The worker resolves the employer's address at send time.
type ApplicationReceivedPayload struct {
	ApplicationID string `json:"applicationId"`
	JobID         string `json:"jobId"`
	JobTitle      string `json:"jobTitle,omitempty"`
	EmployerID    string `json:"employerId"`
	ApplicantType string `json:"applicantType"`
	ApplicantName string `json:"applicantName,omitempty"`
	RequestID     string `json:"requestId,omitempty"`
}
