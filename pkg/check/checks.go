package check

import "github.com/pkg/errors"

// NotEmpty returns an error if the provided string is empty.
func NotEmpty(s string, msgAndArgs ...interface{}) error {
	if s == "" {
		return check(false, msgAndArgs, "string must be non-empty")
	}
	return nil
}

// In returns an error if the value is not contained in the allowed set.
func In(value string, allowed []string, msgAndArgs ...interface{}) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return check(false, msgAndArgs, "%s is not in {%v}", value, allowed)
}

// BetweenInclusive returns an error if the value is outside [min, max].
func BetweenInclusive(value, min, max int, msgAndArgs ...interface{}) error {
	return check(min <= value && value <= max, msgAndArgs,
		"%d is not between %d and %d", value, min, max)
}

func check(condition bool, msgAndArgs []interface{}, internalFormat string,
	internalArgs ...interface{}) error {
	if condition {
		return nil
	}
	if len(msgAndArgs) > 0 {
		if msg, ok := msgAndArgs[0].(string); ok {
			args := msgAndArgs[1:]
			return errors.Errorf(msg, args...)
		}
	}
	return errors.Errorf(internalFormat, internalArgs...)
}
