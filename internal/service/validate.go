package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/damoang/angple-rules/internal/common"
	pkglogger "github.com/damoang/angple-rules/pkg/logger"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateInput runs struct tag validation and reports the first failing field
func validateInput(in interface{}) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return common.Invalid(fmt.Sprintf("%s failed %s validation", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return common.ErrInvalidInput
}

// fail passes business errors through and hides everything else behind ErrInternal
func fail(op string, err error) error {
	if err == nil {
		return nil
	}
	if common.IsAppError(err) {
		return err
	}
	pkglogger.GetLogger().Error().Err(err).Str("op", op).Msg("unexpected failure")
	return fmt.Errorf("%s: %w", op, common.ErrInternal)
}
