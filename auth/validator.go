package auth

import (
	"fmt"

	"collab-hub/domain"
	"collab-hub/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateIdentity rejects claims that cannot identify a room member.
func ValidateIdentity(identity domain.Identity) error {
	if err := validate.Struct(identity); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}
	return nil
}
