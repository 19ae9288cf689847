package models

// RegisterRequest creates a member account.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// LoginRequest exchanges credentials for a member token.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

// ChangePasswordRequest replaces the member's password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=128"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128,nefield=CurrentPassword"`
}

// DeleteAccountRequest confirms account deletion with the current password.
type DeleteAccountRequest struct {
	Password string `json:"password" validate:"required,max=128"`
}

// BlockIdentityRequest is the admin console's block action.
// A nil DurationMinutes blocks indefinitely.
type BlockIdentityRequest struct {
	Namespace       string `json:"namespace" validate:"required,oneof=ip account"`
	Identity        string `json:"identity" validate:"required,max=320"`
	Reason          string `json:"reason" validate:"max=500"`
	DurationMinutes *int   `json:"duration_minutes,omitempty" validate:"omitempty,min=1,max=5256000"`
}
