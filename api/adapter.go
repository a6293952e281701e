package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/BaSui01/ragflow/types"
	"github.com/BaSui01/ragflow/workflow"
	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks a request's struct tags and returns INVALID_REQUEST on the
// first violation.
func Validate(req any) error {
	err := requestValidator().Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return types.NewError(types.ErrInvalidRequest, describeFieldError(fe)).WithCause(err)
	}
	return types.NewError(types.ErrInvalidRequest, "invalid request").WithCause(err)
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), strings.SplitN(fe.Namespace(), ".", 2)[0]+".")
	switch fe.Tag() {
	case "required", "required_without":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s exceeds %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q validation", field, fe.Tag())
	}
}

// FromAsk builds the state of a single-shot invocation. The resumption key is
// workflow.DefaultResumptionKey unless the request names a thread.
func FromAsk(req AskRequest) (*workflow.State, error) {
	req.Question = strings.TrimSpace(req.Question)
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.Project = strings.TrimSpace(req.Project)
	req.ThreadID = strings.TrimSpace(req.ThreadID)

	if err := Validate(req); err != nil {
		return nil, err
	}

	st := workflow.NewState(req.SessionID, req.Project)
	st.Question = req.Question
	if req.ThreadID != "" {
		st.ResumptionKey = req.ThreadID
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	return st, nil
}

// FromChat builds the state of a multi-turn invocation keyed by the request's
// thread id. Resume requests only need the thread id and return a nil state.
func FromChat(req ChatRequest) (*workflow.State, error) {
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.Project = strings.TrimSpace(req.Project)
	req.ThreadID = strings.TrimSpace(req.ThreadID)

	if err := Validate(req); err != nil {
		return nil, err
	}
	if req.Resume {
		return nil, nil
	}

	st := workflow.NewState(req.SessionID, req.Project)
	st.Messages = types.CloneMessages(req.Messages)
	st.ResumptionKey = req.ThreadID
	if err := st.Validate(); err != nil {
		return nil, err
	}
	return st, nil
}

// ExtractLastUserText returns the last text part of the newest user turn that
// carries text.
func ExtractLastUserText(messages []types.Message) string {
	return types.LastUserText(messages)
}
