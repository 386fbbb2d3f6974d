package tools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rcliao/aide/internal/model"
)

// SaveInput is the argument object of memory_save.
type SaveInput struct {
	Content string   `json:"content" validate:"required" jsonschema_description:"Text to remember."`
	Kind    string   `json:"kind,omitempty" validate:"omitempty,oneof=fact preference decision summary log" jsonschema:"enum=fact,enum=preference,enum=decision,enum=summary,enum=log" jsonschema_description:"Entry kind (default fact)."`
	Tags    []string `json:"tags,omitempty" validate:"omitempty,dive,required" jsonschema_description:"Optional tags."`
	ID      string   `json:"id,omitempty" jsonschema_description:"Existing long-term id to update in place."`
}

// SaveOutput is the data of a successful memory_save.
type SaveOutput struct {
	ID      string     `json:"id"`
	Kind    model.Kind `json:"kind"`
	Updated bool       `json:"updated"`
	Trimmed int        `json:"trimmed"`
}

// SearchInput is the argument object of memory_search.
type SearchInput struct {
	Query string `json:"query" validate:"required" jsonschema_description:"Search terms or an FTS5 expression."`
	Limit int    `json:"limit,omitempty" validate:"omitempty,min=1,max=100" jsonschema_description:"Maximum results (default 10)."`
}

// ListInput is the argument object of memory_list.
type ListInput struct {
	Kind  string `json:"kind,omitempty" validate:"omitempty,oneof=fact preference decision summary log" jsonschema:"enum=fact,enum=preference,enum=decision,enum=summary,enum=log" jsonschema_description:"Only list this kind."`
	Limit int    `json:"limit,omitempty" validate:"omitempty,min=1,max=500" jsonschema_description:"Maximum entries (default 20)."`
}

// ForgetInput is the argument object of memory_forget.
type ForgetInput struct {
	ID string `json:"id" validate:"required" jsonschema_description:"Id of the long-term entry to delete."`
}

// ForgetOutput is the data of a successful memory_forget.
type ForgetOutput struct {
	ID      string `json:"id"`
	Removed bool   `json:"removed"`
}

// StatsInput is the (empty) argument object of memory_stats.
type StatsInput struct{}

var validate = validator.New()

func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return fmt.Errorf("invalid arguments: %s", strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Field())
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	}
	return fmt.Sprintf("%s is invalid", field)
}
