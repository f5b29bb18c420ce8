package transfer

type AccountRequest struct {
	Platform     string            `json:"platform"`
	AccountID    string            `json:"account_id"`
	AccountName  string            `json:"account_name"`
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	ExpiresIn    int               `json:"expires_in"`
	Settings     map[string]string `json:"settings"`
}
