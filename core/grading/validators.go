package grading

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/examoffice/core"
)

var (
	sessionTag  = "session"
	semesterTag = "semester"
	levelTag    = "level"
)

// RegisterValidators adds the `session`, `semester` and `level` tags to validate.
func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(sessionTag, sessionValidation)
	core.RegisterCustomTranslation(validate, translator, sessionTag, ErrInvalidSession.Error())

	_ = validate.RegisterValidation(semesterTag, semesterValidation)
	core.RegisterCustomTranslation(validate, translator, semesterTag, ErrInvalidSemester.Error())

	_ = validate.RegisterValidation(levelTag, levelValidation)
	core.RegisterCustomTranslation(validate, translator, levelTag, ErrInvalidLevel.Error())
}

func sessionValidation(fl validator.FieldLevel) bool {
	_, err := ParseSession(fl.Field().String())
	return err == nil
}

func semesterValidation(fl validator.FieldLevel) bool {
	_, err := ParseSemester(fl.Field().String())
	return err == nil
}

func levelValidation(fl validator.FieldLevel) bool {
	_, err := ParseLevel(fl.Field().String())
	return err == nil
}
