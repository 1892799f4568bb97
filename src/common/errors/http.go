package errors

// Response is the JSON error body returned by the HTTP control surface
type Response struct {
	// Error contains the error code (domain.code format)
	Error string `json:"error"`

	// Message contains a human-readable error message
	Message string `json:"message"`

	// Details contains optional additional error details
	Details map[string]interface{} `json:"details,omitempty"`
}

// ToResponse converts an Error to an HTTP response structure
func (e *Error) ToResponse() Response {
	msg := e.Message
	if e.cause != nil {
		msg = msg + ": " + e.cause.Error()
	}
	return Response{
		Error:   string(e.Domain) + "." + string(e.Code),
		Message: msg,
	}
}

// ToResponseWithDetails converts an Error to an HTTP response with additional details
func (e *Error) ToResponseWithDetails(details map[string]interface{}) Response {
	resp := e.ToResponse()
	resp.Details = details
	return resp
}

// NewResponse creates a response from any error. Foreign errors become a
// generic internal error so tool internals are not leaked.
func NewResponse(err error) Response {
	var e *Error
	if As(err, &e) {
		return e.ToResponse()
	}
	return Response{
		Error:   string(DomainInternal) + "." + string(CodeInternal),
		Message: "Internal error",
	}
}
