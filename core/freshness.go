package core

// ExpiresInVerdict is the outcome of validating a provider-reported token
// lifetime.
type ExpiresInVerdict string

const (
	// ExpiresInInvalid rejects the response outright; the account is
	// marked error rather than guessing a lifetime.
	ExpiresInInvalid ExpiresInVerdict = "invalid"
	// ExpiresInValid honors the reported value, including values below
	// the sane minimum, so a short-lived token is not double-refreshed.
	ExpiresInValid ExpiresInVerdict = "valid"
	// ExpiresInUseDefault substitutes the configured default for an
	// implausibly large value.
	ExpiresInUseDefault ExpiresInVerdict = "use_default"
)

// ValidateExpiresIn applies the lifetime sanity policy to a refresh
// response. The returned seconds are the value to persist when the
// verdict is not ExpiresInInvalid.
func ValidateExpiresIn(seconds int64, cfg RefresherConfig) (ExpiresInVerdict, int64) {
	if seconds <= 0 {
		return ExpiresInInvalid, 0
	}
	if seconds > int64(cfg.MaxExpiresInSeconds) {
		return ExpiresInUseDefault, int64(cfg.DefaultExpiresSeconds)
	}
	return ExpiresInValid, seconds
}
