package dto

type LoginInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Fingerprint string `json:"-"`
	IPAddress   string `json:"-"`
	UserAgent   string `json:"-"`
}

type LoginResponse struct {
	Success         bool   `json:"success"`
	UserID          string `json:"user_id"`
	Email           string `json:"email"`
	Username        string `json:"username"`
	Token           string `json:"token"`
	RefreshToken    string `json:"refresh_token"`
	TokenType       string `json:"token_type"`
	ExpiresIn       int    `json:"expires_in"`
	CaptchaRequired bool   `json:"captcha_required"`
}
