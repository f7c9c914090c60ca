package http

// ErrorResponse is the uniform error payload for all API endpoints.
type ErrorResponse struct {
	Code    int    `json:"code"`             // non-zero on error
	Message string `json:"message"`          // human readable message
	Detail  string `json:"detail,omitempty"` // optional detail
}

// SuccessResponse is the uniform success payload for all API endpoints.
type SuccessResponse struct {
	Code    int         `json:"code"`           // 0 on success
	Message string      `json:"message"`        // response message
	Data    interface{} `json:"data,omitempty"` // optional payload
}

// NewSuccessResponse builds a success payload.
func NewSuccessResponse(message string, data interface{}) *SuccessResponse {
	return &SuccessResponse{
		Code:    0,
		Message: message,
		Data:    data,
	}
}

// NewErrorResponse builds an error payload.
func NewErrorResponse(code int, message string, detail ...string) *ErrorResponse {
	resp := &ErrorResponse{
		Code:    code,
		Message: message,
	}
	if len(detail) > 0 && detail[0] != "" {
		resp.Detail = detail[0]
	}
	return resp
}
