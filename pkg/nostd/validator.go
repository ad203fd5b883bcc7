package nostd

import (
	"errors"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	translations "github.com/go-playground/validator/v10/translations/en"
)

// CustomValidator echo 请求校验器，错误信息经过翻译后返回
type CustomValidator struct {
	Validator *validator.Validate

	trans ut.Translator
}

// TransInit 初始化翻译器
func (cv *CustomValidator) TransInit() error {
	locale := en.New()
	uni := ut.New(locale, locale)
	trans, ok := uni.GetTranslator("en")
	if !ok {
		return errors.New("translator not found: en")
	}
	cv.trans = trans
	return translations.RegisterDefaultTranslations(cv.Validator, trans)
}

// Validate 实现 echo.Validator
func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.Validator.Struct(i); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && cv.trans != nil {
			for _, e := range verrs {
				return errors.New(e.Translate(cv.trans))
			}
		}
		return err
	}
	return nil
}
