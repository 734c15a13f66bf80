package definition

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidDeclaration marks a declaration with a missing or mistyped field.
	ErrInvalidDeclaration = errors.New("invalid declaration")
	// ErrComposition marks a declaration whose fragments cannot be merged.
	ErrComposition = errors.New("composition failed")
	// ErrDuplicate marks a built-in definition clashing with a registered one.
	ErrDuplicate = errors.New("duplicate definition")
)

func invalidField(model, field, want string) error {
	return fmt.Errorf("%w: %q: field %s must be %s", ErrInvalidDeclaration, model, field, want)
}

// benignPatterns are transport errors some firmware returns for optional
// attributes and commands; hooks may continue past them.
var benignPatterns = []string{
	"UNSUPPORTED_ATTRIBUTE",
	"UNSUP_GENERAL_COMMAND",
	"UNSUP_MANUF_GENERAL_COMMAND",
}

// IsBenign reports whether err is a known harmless vendor quirk.
func IsBenign(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, p := range benignPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IgnoreBenign drops benign transport errors and returns the rest.
func IgnoreBenign(err error) error {
	if IsBenign(err) {
		return nil
	}
	return err
}
