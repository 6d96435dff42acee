// Package rpcerror provides the error envelope every procedure failure is
// normalized to, and the error-map rules that decide whether an error was
// declared by the procedure's contract.
package rpcerror

// Code is a machine-readable error code.
type Code string

const (
	CodeBadRequest           Code = "BAD_REQUEST"
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeForbidden            Code = "FORBIDDEN"
	CodeNotFound             Code = "NOT_FOUND"
	CodeMethodNotSupported   Code = "METHOD_NOT_SUPPORTED"
	CodeNotAcceptable        Code = "NOT_ACCEPTABLE"
	CodeTimeout              Code = "TIMEOUT"
	CodeConflict             Code = "CONFLICT"
	CodePreconditionFailed   Code = "PRECONDITION_FAILED"
	CodePayloadTooLarge      Code = "PAYLOAD_TOO_LARGE"
	CodeUnsupportedMediaType Code = "UNSUPPORTED_MEDIA_TYPE"
	CodeUnprocessableContent Code = "UNPROCESSABLE_CONTENT"
	CodeTooManyRequests      Code = "TOO_MANY_REQUESTS"
	CodeClientClosedRequest  Code = "CLIENT_CLOSED_REQUEST"

	CodeInternalServerError Code = "INTERNAL_SERVER_ERROR"
	CodeNotImplemented      Code = "NOT_IMPLEMENTED"
	CodeBadGateway          Code = "BAD_GATEWAY"
	CodeServiceUnavailable  Code = "SERVICE_UNAVAILABLE"
	CodeGatewayTimeout      Code = "GATEWAY_TIMEOUT"
)

type commonCode struct {
	status  int
	message string
}

var commonCodes = map[Code]commonCode{
	CodeBadRequest:           {400, "Bad Request"},
	CodeUnauthorized:         {401, "Unauthorized"},
	CodeForbidden:            {403, "Forbidden"},
	CodeNotFound:             {404, "Not Found"},
	CodeMethodNotSupported:   {405, "Method Not Supported"},
	CodeNotAcceptable:        {406, "Not Acceptable"},
	CodeTimeout:              {408, "Request Timeout"},
	CodeConflict:             {409, "Conflict"},
	CodePreconditionFailed:   {412, "Precondition Failed"},
	CodePayloadTooLarge:      {413, "Payload Too Large"},
	CodeUnsupportedMediaType: {415, "Unsupported Media Type"},
	CodeUnprocessableContent: {422, "Unprocessable Content"},
	CodeTooManyRequests:      {429, "Too Many Requests"},
	CodeClientClosedRequest:  {499, "Client Closed Request"},
	CodeInternalServerError:  {500, "Internal Server Error"},
	CodeNotImplemented:       {501, "Not Implemented"},
	CodeBadGateway:           {502, "Bad Gateway"},
	CodeServiceUnavailable:   {503, "Service Unavailable"},
	CodeGatewayTimeout:       {504, "Gateway Timeout"},
}

// DefaultStatus returns the status conventionally associated with code,
// or 500 for codes outside the common table.
func DefaultStatus(code Code) int {
	if c, ok := commonCodes[code]; ok {
		return c.status
	}
	return 500
}

// DefaultMessage returns the message conventionally associated with code,
// or the code itself for codes outside the common table.
func DefaultMessage(code Code) string {
	if c, ok := commonCodes[code]; ok {
		return c.message
	}
	return string(code)
}

// FallbackStatus returns status when set, otherwise DefaultStatus(code).
func FallbackStatus(code Code, status int) int {
	if status != 0 {
		return status
	}
	return DefaultStatus(code)
}

// FallbackMessage returns message when set, otherwise DefaultMessage(code).
func FallbackMessage(code Code, message string) string {
	if message != "" {
		return message
	}
	return DefaultMessage(code)
}

// ValidStatus reports whether status is an error status.
func ValidStatus(status int) bool {
	return status >= 400 && status <= 599
}
