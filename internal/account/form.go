package account

import (
	"strings"

	"github.com/vovakirdan/wirechat-dm/internal/auth"
	"github.com/vovakirdan/wirechat-dm/internal/proto"
)

// ValidationError is a sign-up form problem, worded for the user.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// SignUpForm is what the user typed on the sign-up screen.
type SignUpForm struct {
	Image           string // base64 encoded
	Name            string
	LastName        string
	Email           string
	Password        string
	ConfirmPassword string
}

// Validate checks the form field by field, in screen order, and returns
// the first problem.
func (f SignUpForm) Validate() error {
	switch {
	case f.Image == "":
		return &ValidationError{Field: "image", Message: "Please select your image"}
	case strings.TrimSpace(f.Name) == "":
		return &ValidationError{Field: "name", Message: "Please Enter your First Name"}
	case strings.TrimSpace(f.LastName) == "":
		return &ValidationError{Field: "lastName", Message: "Please Enter your Last Name"}
	case strings.TrimSpace(f.Email) == "":
		return &ValidationError{Field: "email", Message: "Please Enter your Email"}
	case !auth.ValidEmail(strings.TrimSpace(f.Email)):
		return &ValidationError{Field: "email", Message: "Please Enter a valid Email"}
	case strings.TrimSpace(f.Password) == "":
		return &ValidationError{Field: "password", Message: "Please Enter your Password"}
	case strings.TrimSpace(f.ConfirmPassword) == "":
		return &ValidationError{Field: "confirmPassword", Message: "Please Confirm Password"}
	case f.Password != f.ConfirmPassword:
		return &ValidationError{Field: "confirmPassword", Message: "Password and Confirm Password must be the same"}
	}
	return nil
}

func (f SignUpForm) request() proto.RegisterRequest {
	return proto.RegisterRequest{
		Name:            strings.TrimSpace(f.Name),
		LastName:        strings.TrimSpace(f.LastName),
		Email:           strings.TrimSpace(f.Email),
		Password:        f.Password,
		ConfirmPassword: f.ConfirmPassword,
		Image:           f.Image,
	}
}
