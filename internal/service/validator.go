package service

import (
	"github.com/go-playground/validator/v10"

	"github.com/applifix/backend/internal/conversation"
)

// MinPhoneDigits is the shortest phone number a task may be created with.
const MinPhoneDigits = 10

// NewValidator returns a validator with the project tags registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return len(conversation.DigitsOnly(fl.Field().String())) >= MinPhoneDigits
	})
	return v
}
