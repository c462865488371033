package validate

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
)

// PlaygroundV10 Validator implementation using go-playground
type PlaygroundV10 struct {
	core  *validator.Validate
	trans ut.Translator
}

var _ Validator = &PlaygroundV10{}

// NewValidator create a new Validator, locale is one of "en" or "zh" and falls back to "en"
func NewValidator(locale string) *PlaygroundV10 {
	enLocale := en.New()
	uni := ut.New(enLocale, enLocale, zh.New())

	validate := validator.New()
	trans, found := uni.GetTranslator(locale)
	switch {
	case found && locale == "zh":
		zh_translations.RegisterDefaultTranslations(validate, trans)
	default:
		trans, _ = uni.GetTranslator("en")
		en_translations.RegisterDefaultTranslations(validate, trans)
	}
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			name = fld.Tag.Get("query")
			if name == "-" || name == "" {
				return ""
			}
		}
		return name
	})
	return &PlaygroundV10{
		core:  validate,
		trans: trans,
	}
}

// Struct validate struct
func (v PlaygroundV10) Struct(s interface{}) FieldErrors {
	var result FieldErrors
	if err := v.core.Struct(s); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return FieldErrors{NewFieldError("", err.Error())}
		}
		for _, item := range verrs {
			result = append(result, NewFieldError(item.Field(), item.Translate(v.trans)))
		}
		return result
	}
	return nil
}

// Empty check if value is empty
func (v PlaygroundV10) Empty(varName string, s interface{}) FieldErrors {
	if err := v.core.Var(s, "required"); err != nil {
		return FieldErrors{NewFieldError(varName, fmt.Sprintf("%s is required", varName))}
	}
	return nil
}

// AllEmpty check if all fields are empty
//
// names and fields have one to one relationship respect to the order
func (v PlaygroundV10) AllEmpty(names []string, fields ...interface{}) *FieldError {
	if len(names) != len(fields) {
		panic(fmt.Errorf("number of name: %d, fields: %d", len(names), len(fields)))
	}

	for _, s := range fields {
		if err := v.core.Var(s, "required"); err == nil {
			return nil
		}
	}
	return NewFieldError(strings.Join(names, ","), "One of the fields should not be empty")
}
