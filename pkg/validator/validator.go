package validator

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	playground "github.com/go-playground/validator/v10"
)

var (
	engineOnce sync.Once
	engine     *playground.Validate
)

// FieldError is one rejected field, named by its JSON key.
type FieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}

// Message renders the failure for API clients.
func (e FieldError) Message() string {
	field := strings.ToLower(strings.ReplaceAll(e.Field, "_", " "))
	if field == "" {
		field = "field"
	}
	switch e.Tag {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, e.Param)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param)
	case "uuid4":
		return field + " must be a valid UUID"
	}
	if allowed, ok := enumValues(e.Tag); ok {
		return fmt.Sprintf("%s must be one of %s", field, strings.Join(allowed, ", "))
	}
	if e.Param != "" {
		return fmt.Sprintf("%s failed %s=%s", field, e.Tag, e.Param)
	}
	return fmt.Sprintf("%s failed %s", field, e.Tag)
}

// Errors collects every rejected field of one payload.
type Errors []FieldError

func (errs Errors) Error() string {
	if len(errs) == 0 {
		return "invalid request payload"
	}
	messages := make([]string, len(errs))
	for i, failure := range errs {
		messages[i] = failure.Message()
	}
	return strings.Join(messages, "; ")
}

// Struct validates s against its validate tags. Rule violations come back as Errors.
func Struct(s any) error {
	err := validate().Struct(s)
	var failures playground.ValidationErrors
	if !errors.As(err, &failures) {
		return err
	}
	out := make(Errors, len(failures))
	for i, fe := range failures {
		out[i] = FieldError{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param()}
	}
	return out
}

var (
	enumsMu sync.RWMutex
	enums   = map[string][]string{}
)

func enumValues(tag string) ([]string, bool) {
	enumsMu.RLock()
	defer enumsMu.RUnlock()
	values, ok := enums[tag]
	return values, ok
}

// RegisterEnum adds a tag accepting blank strings or one of values. Combine with dive for
// string slices.
func RegisterEnum(tag string, values ...string) error {
	allowed := slices.Clone(values)
	err := validate().RegisterValidation(tag, func(fl playground.FieldLevel) bool {
		field := fl.Field()
		if field.Kind() != reflect.String {
			return false
		}
		value := strings.TrimSpace(field.String())
		return value == "" || slices.Contains(allowed, value)
	})
	if err != nil {
		return fmt.Errorf("validator: register %q: %w", tag, err)
	}

	enumsMu.Lock()
	enums[tag] = allowed
	enumsMu.Unlock()
	return nil
}

func validate() *playground.Validate {
	engineOnce.Do(func() {
		engine = playground.New(playground.WithRequiredStructEnabled())
		engine.RegisterTagNameFunc(jsonFieldName)
	})
	return engine
}

func jsonFieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return field.Name
	}
	return name
}
