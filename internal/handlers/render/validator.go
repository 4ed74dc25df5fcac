package render

import (
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const passwordMinLength = 6

func configureValidator(validate *validator.Validate) {
	_ = validate.RegisterValidation("password", validatePassword)
	validate.RegisterTagNameFunc(useJSONTagNames)
}

func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

// Password must have at least passwordMinLength runes, not bytes
func validatePassword(fl validator.FieldLevel) bool {
	return utf8.RuneCountInString(fl.Field().String()) >= passwordMinLength
}
