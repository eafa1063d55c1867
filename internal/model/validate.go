package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks that categoricals are present and scores sit inside their
// documented ranges. NaN fails every range check.
func (p PostFeatures) Validate() error {
	err := validatorInstance().Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param()))
		case "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be <= %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidPost, strings.Join(msgs, "; "))
}

// ValidateForDaySearch is Validate with day_of_week optional, for callers
// that try every day themselves.
func (p PostFeatures) ValidateForDaySearch() error {
	if p.DayOfWeek == "" {
		p.DayOfWeek = "-"
	}
	return p.Validate()
}

// ErrInvalidPost is returned by Validate.
var ErrInvalidPost = errors.New("invalid post")
