package domain

// Keys recognised in the administrative settings store. Operators maintain
// these rows; the workflow only reads them.
const (
	SettingSMSAPIID    = "sms_api_id"
	SettingSMSAPIKey   = "sms_api_key"
	SettingSMSUsername = "sms_username"
	SettingSMSPassword = "sms_password"
	SettingSMSSender   = "sms_sender"

	SettingStripeSecretKey = "stripe_secret_key"
)

// SMSCredentials holds the gateway secrets required to send an SMS.
type SMSCredentials struct {
	APIID    string
	APIKey   string
	Username string
	Password string
	Sender   string
}

// Complete reports whether every required credential is present.
func (c SMSCredentials) Complete() bool {
	return c.APIID != "" && c.APIKey != "" && c.Username != "" && c.Password != "" && c.Sender != ""
}

// StripeCredentials holds the payment gateway secret.
type StripeCredentials struct {
	SecretKey string
}

// Complete reports whether the gateway is configured.
func (c StripeCredentials) Complete() bool {
	return c.SecretKey != ""
}

// SMSCredentialsFromSettings picks the recognised SMS keys out of a raw
// settings map.
func SMSCredentialsFromSettings(settings map[string]string) SMSCredentials {
	return SMSCredentials{
		APIID:    settings[SettingSMSAPIID],
		APIKey:   settings[SettingSMSAPIKey],
		Username: settings[SettingSMSUsername],
		Password: settings[SettingSMSPassword],
		Sender:   settings[SettingSMSSender],
	}
}

// StripeCredentialsFromSettings picks the recognised Stripe keys out of a raw
// settings map.
func StripeCredentialsFromSettings(settings map[string]string) StripeCredentials {
	return StripeCredentials{SecretKey: settings[SettingStripeSecretKey]}
}
