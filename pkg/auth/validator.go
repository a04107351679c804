package auth

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	chaterrors "github.com/mahaj/duochat/pkg/errors"
)

var validate = validator.New()

// RegisterRequest is the body of a registration or login.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,alphanum"`
	// bcrypt ignores bytes past 72
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func ValidateRegister(req RegisterRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %w", chaterrors.ErrInvalidInput, err)
	}
	return nil
}
