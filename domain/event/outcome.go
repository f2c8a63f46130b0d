package event

// Outcome is the reply of a pre-handler. The zero value proceeds.
type Outcome struct {
	canceled      bool
	reason        string
	token         string
	passwordValid *bool
}

func Proceed() Outcome {
	return Outcome{}
}

func Cancel(reason string) Outcome {
	return Outcome{canceled: true, reason: reason}
}

// SuggestToken proceeds and offers a custom token for TOKEN_GENERATE.
func SuggestToken(token string) Outcome {
	return Outcome{token: token}
}

// PasswordResult proceeds and overrides the password check for
// PASSWORD_VERIFY.
func PasswordResult(valid bool) Outcome {
	return Outcome{passwordValid: &valid}
}

func (o Outcome) Canceled() bool {
	return o.canceled
}

func (o Outcome) Reason() string {
	return o.reason
}

func (o Outcome) Token() string {
	return o.token
}

// PasswordOverride reports whether a handler decided the password check, and
// its verdict.
func (o Outcome) PasswordOverride() (valid, ok bool) {
	if o.passwordValid == nil {
		return false, false
	}
	return *o.passwordValid, true
}
