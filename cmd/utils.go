package main

import (
	"github.com/siahsang/notes/internal/validator"
)

func checkEmail(v *validator.Validator, email string) {
	v.CheckNotBlank(email, "email", "must be provided")
	v.CheckEmail(email, "email", "must be a valid email address")
}
