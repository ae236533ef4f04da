package validator

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-ozzo/ozzo-validation/v4/is"
)

type Validator struct {
	Errors map[string]string
}

func New() *Validator {
	return &Validator{Errors: make(map[string]string)}
}

func (v *Validator) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *Validator) AddError(key, message string) {
	if _, exists := v.Errors[key]; !exists {
		v.Errors[key] = message
	}
}

func (v *Validator) Check(ok bool, key, message string) {
	if !ok {
		v.AddError(key, message)
	}
}

func (v *Validator) CheckNotBlank(value, key, message string) {
	v.Check(strings.TrimSpace(value) != "", key, message)
}

func (v *Validator) CheckMaxLength(value string, max int, key, message string) {
	v.Check(utf8.RuneCountInString(value) <= max, key, message)
}

func (v *Validator) CheckEmail(value, key, message string) {
	v.Check(is.EmailFormat.Validate(value) == nil, key, message)
}

func (v *Validator) IsMatch(value string, rx *regexp.Regexp) bool {
	return rx.MatchString(value)
}

func (v *Validator) IsUnique(value []string) bool {
	uniqueValues := make(map[string]bool)

	for _, val := range value {
		if _, exists := uniqueValues[val]; exists {
			return false
		}
		uniqueValues[val] = true
	}
	return true
}
