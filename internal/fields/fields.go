// Package fields localizes field validation messages.
//
// Struct validation is done by go-playground/validator; this package registers
// zh or en messages for the common field kinds and turns validation and decode
// errors into a field -> message map.
package fields

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/locales"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
)

// Kind names a field message.
type Kind string

// Field kinds with a localized message.
const (
	KindRequired Kind = "required"
	KindNull     Kind = "null"
	KindInvalid  Kind = "invalid"
	KindString   Kind = "string"
	KindUUID     Kind = "uuid"
	KindNumber   Kind = "number"
	KindInteger  Kind = "integer"
	KindBoolean  Kind = "boolean"
	KindDatetime Kind = "datetime"
	KindDate     Kind = "date"
	KindTime     Kind = "time"
	KindURL      Kind = "url"
	KindEmail    Kind = "email"
	KindMapping  Kind = "mapping"
	KindList     Kind = "list"
)

var zhMessages = map[Kind]string{
	KindRequired: "必需的字段缺少数据.",
	KindNull:     "字段不能为空(null).",
	KindInvalid:  "无效的值.",
	KindString:   "不是一个有效的字符串.",
	KindUUID:     "不是一个有效的UUID类型.",
	KindNumber:   "不是一个有效的Number类型.",
	KindInteger:  "不是一个有效的整型(integer).",
	KindBoolean:  "不是一个有效的boolean类型.",
	KindDatetime: "不是一个有效的日期时间(datetime)类型.",
	KindDate:     "不是一个有效的日期(date)类型.",
	KindTime:     "不是一个有效的时间(time)类型.",
	KindURL:      "不是一个有效的URL类型.",
	KindEmail:    "不是一个有效的email地址.",
	KindMapping:  "不是一个有效的映射(mapping)类型.",
	KindList:     "不是一个有效的列表(数组).",
}

var enMessages = map[Kind]string{
	KindRequired: "Missing data for required field.",
	KindNull:     "Field may not be null.",
	KindInvalid:  "Invalid value.",
	KindString:   "Not a valid string.",
	KindUUID:     "Not a valid UUID.",
	KindNumber:   "Not a valid number.",
	KindInteger:  "Not a valid integer.",
	KindBoolean:  "Not a valid boolean.",
	KindDatetime: "Not a valid datetime.",
	KindDate:     "Not a valid date.",
	KindTime:     "Not a valid time.",
	KindURL:      "Not a valid URL.",
	KindEmail:    "Not a valid email address.",
	KindMapping:  "Not a valid mapping type.",
	KindList:     "Not a valid list.",
}

// tagKinds maps validator tags to the kind whose message they report.
var tagKinds = map[string]Kind{
	"required": KindRequired,
	"uuid":     KindUUID,
	"uuid4":    KindUUID,
	"number":   KindNumber,
	"numeric":  KindNumber,
	"boolean":  KindBoolean,
	"url":      KindURL,
	"http_url": KindURL,
	"email":    KindEmail,
	"datetime": KindDatetime,
}

// Message returns the message of kind in the selected locale.
func Message(kind Kind, useZh bool) string {
	if useZh {
		return zhMessages[kind]
	}
	return enMessages[kind]
}

// Errors maps field names to messages. It is returned for invalid input.
type Errors map[string]string

// Error implements the error interface.
func (e Errors) Error() string {
	names := make([]string, 0, len(e))
	for name := range e {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ": " + e[name]
	}
	return strings.Join(parts, "; ")
}

// Validator validates structs and reports localized field messages.
// It is safe for concurrent use.
type Validator struct {
	validate *validator.Validate
	trans    ut.Translator
	useZh    bool
}

// New returns a Validator with zh messages when useZh is true and en otherwise.
func New(useZh bool) (*Validator, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	trans, err := Register(v, useZh)
	if err != nil {
		return nil, err
	}
	return &Validator{validate: v, trans: trans, useZh: useZh}, nil
}

// Register installs the localized messages on an existing validator, such as
// the one behind gin's binding, and returns its translator. Field names are
// reported by their json name.
func Register(v *validator.Validate, useZh bool) (ut.Translator, error) {
	var loc locales.Translator = en.New()
	if useZh {
		loc = zh.New()
	}
	trans, _ := ut.New(loc, loc).GetTranslator(loc.Locale())

	var err error
	if useZh {
		err = zh_translations.RegisterDefaultTranslations(v, trans)
	} else {
		err = en_translations.RegisterDefaultTranslations(v, trans)
	}
	if err != nil {
		return nil, fmt.Errorf("register default translations: %w", err)
	}

	v.RegisterTagNameFunc(jsonName)

	messages := enMessages
	if useZh {
		messages = zhMessages
	}
	for tag, kind := range tagKinds {
		err := v.RegisterTranslation(tag, trans, addMessages(messages), translate(kind))
		if err != nil {
			return nil, fmt.Errorf("register %s translation: %w", tag, err)
		}
	}

	return trans, nil
}

func addMessages(messages map[Kind]string) validator.RegisterTranslationsFunc {
	return func(trans ut.Translator) error {
		for kind, text := range messages {
			if err := trans.Add(string(kind), text, true); err != nil {
				return err
			}
		}
		return nil
	}
}

func translate(kind Kind) validator.TranslationFunc {
	return func(trans ut.Translator, fe validator.FieldError) string {
		k := kind
		if k == KindDatetime {
			k = layoutKind(fe.Param())
		}
		text, err := trans.T(string(k))
		if err != nil {
			return fe.Error()
		}
		return text
	}
}

// layoutKind tells a date, time or datetime layout apart.
func layoutKind(layout string) Kind {
	hasDate := strings.Contains(layout, "2006") || (strings.Contains(layout, "01") && strings.Contains(layout, "02"))
	hasTime := strings.Contains(layout, "15") || strings.Contains(layout, "04:05")
	switch {
	case hasDate && !hasTime:
		return KindDate
	case hasTime && !hasDate:
		return KindTime
	default:
		return KindDatetime
	}
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	default:
		return name
	}
}

// Struct validates s. Invalid fields are reported as Errors.
func (v *Validator) Struct(s any) error {
	return v.Translate(v.validate.Struct(s))
}

// Var validates a single value against tag, e.g. "required,email".
// The error is reported under field.
func (v *Validator) Var(field string, value any, tag string) error {
	err := v.validate.Var(value, tag)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return Errors{field: verrs[0].Translate(v.trans)}
	}
	return err
}

// Translate turns validation and json decode errors into Errors. Other errors
// are returned unchanged.
func (v *Validator) Translate(err error) error {
	return Translate(err, v.trans, v.useZh)
}

// Translate turns validation and json decode errors into Errors using trans for
// validation messages. Other errors are returned unchanged.
func Translate(err error, trans ut.Translator, useZh bool) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make(Errors, len(verrs))
		for _, fe := range verrs {
			out[fieldPath(fe)] = fe.Translate(trans)
		}
		return out
	}

	var terr *json.UnmarshalTypeError
	if errors.As(err, &terr) {
		field := terr.Field
		if field == "" {
			field = "_schema"
		}
		return Errors{field: Message(typeKind(terr.Type), useZh)}
	}

	return err
}

// fieldPath is the namespace of fe without the top-level struct name.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

// typeKind returns the kind whose message describes a value of type t.
func typeKind(t reflect.Type) Kind {
	if t == nil {
		return KindInvalid
	}
	if t == reflect.TypeOf(time.Time{}) {
		return KindDatetime
	}
	switch t.Kind() {
	case reflect.String:
		return KindString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindInteger
	case reflect.Float32, reflect.Float64:
		return KindNumber
	case reflect.Bool:
		return KindBoolean
	case reflect.Map, reflect.Struct:
		return KindMapping
	case reflect.Slice, reflect.Array:
		return KindList
	default:
		return KindInvalid
	}
}
