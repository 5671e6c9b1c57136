package validator

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/stemsi/aptiq-proctor/internal/monitor"
)

// trans is the English translator for request validation errors.
var (
	trans     ut.Translator
	setupOnce sync.Once
)

// fixtures validates seed data structs by their `validate` tags.
var fixtures, fixtureTrans = newEngine("validate")

// violationTypes are the warning types a client may report.
var violationTypes = map[string]bool{
	string(monitor.ViolationTabSwitch):      true,
	string(monitor.ViolationFocusLost):      true,
	string(monitor.ViolationBlockedShortcut): true,
}

// Setup registers the validator with English translations on Gin's binding engine.
// Safe to call more than once.
func Setup() {
	setupOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
			trans = configure(v)
		}
	})
}

func newEngine(tag string) (*govalidator.Validate, ut.Translator) {
	v := govalidator.New()
	v.SetTagName(tag)
	return v, configure(v)
}

// configure registers tag names, custom rules and English messages on v.
// Every engine gets its own translator.
func configure(v *govalidator.Validate) ut.Translator {
	// Use JSON tag name for field names in error messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		}
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("violation", func(fl govalidator.FieldLevel) bool {
		return violationTypes[fl.Field().String()]
	})

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	tr, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, tr)
	_ = v.RegisterTranslation("violation", tr,
		func(ut ut.Translator) error {
			return ut.Add("violation", "{0} must be a known violation type", true)
		},
		func(ut ut.Translator, fe govalidator.FieldError) string {
			t, _ := ut.T("violation", fe.Field())
			return t
		},
	)
	return tr
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name to human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fe.Field()] = fe.Translate(trans)
		}
		return fields
	}

	// Not a validation error (e.g., JSON syntax error).
	fields["detail"] = err.Error()
	return fields
}

// Bind binds and validates the request body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}

// Struct validates seed data. The error lists every failing field, sorted.
func Struct(v interface{}) error {
	err := fixtures.Struct(v)
	if err == nil {
		return nil
	}
	var ve govalidator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Translate(fixtureTrans)))
	}
	sort.Strings(msgs)
	return errors.New(strings.Join(msgs, "; "))
}
