package command

// ValidationError marks a command rejected before any state was touched.
// Transport layers map it to a client error.
type ValidationError struct {
	msg string
}

func (e ValidationError) Error() string {
	return e.msg
}

func validationErr(msg string) error {
	return ValidationError{msg: msg}
}
