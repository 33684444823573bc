package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/production-planner/internal/domain/production"
)

type APIError struct {
	Message string                       `json:"message"`
	Code    string                       `json:"code,omitempty"`
	Issues  []production.ValidationIssue `json:"issues,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondPlannerError picks the status from the error's planner code and
// attaches validation issues when there are any.
func RespondPlannerError(c *gin.Context, err error) {
	code := production.CodeOf(err)
	if code == "" {
		code = production.CodeInternal
	}
	env := ErrorEnvelope{Error: APIError{Code: string(code), Message: "unknown error"}}
	if err != nil {
		env.Error.Message = err.Error()
	}
	var ve *production.ValidationError
	if errors.As(err, &ve) {
		env.Error.Issues = ve.Issues
	}
	status := StatusFor(code)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, env)
}

func StatusFor(code production.ErrorCode) int {
	switch code {
	case production.CodeValidation:
		return http.StatusUnprocessableEntity
	case production.CodeNotFound:
		return http.StatusNotFound
	case production.CodeConflict, production.CodeIllegalTransition, production.CodeCycle:
		return http.StatusConflict
	case production.CodePreconditionFailed:
		return http.StatusPreconditionFailed
	case production.CodeGovernanceRejected:
		return http.StatusForbidden
	case production.CodeRetryable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
