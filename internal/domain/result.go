package domain

// Result is the envelope every public operation is rendered into.
type Result struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// NewResult builds a success envelope carrying data, or an error envelope when err is set.
func NewResult(data any, err error) Result {
	if err != nil {
		code := CodeOf(err)
		return Result{Code: code, Message: code.Message()}
	}
	return Result{Code: CodeSuccess, Message: CodeSuccess.Message(), Data: data}
}

// OK reports whether the envelope carries a success code.
func (r Result) OK() bool {
	return r.Code == CodeSuccess
}
