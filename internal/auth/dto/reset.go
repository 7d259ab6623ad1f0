package dto

type ResetRequestInput struct {
	Email     string `json:"email"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

type ResetConfirmInput struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
	IPAddress   string `json:"-"`
	UserAgent   string `json:"-"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	IPAddress       string `json:"-"`
	UserAgent       string `json:"-"`
}
