package models

// Error codes returned in ErrorResponse.Code.
const (
	ErrCodeBadRequest       = 40000
	ErrCodeValidation       = 40001
	ErrCodeMediaMissing     = 40002
	ErrCodeWrongCredentials = 40101
	ErrCodeTokenInvalid     = 40102
	ErrCodeTokenExpired     = 40103
	ErrCodeTokenReused      = 40104
	ErrCodeUserNotFound     = 40401
	ErrCodeDuplicateUser    = 40901
	ErrCodeDuplicateEmail   = 40902
	ErrCodeConcurrentUpdate = 40903
	ErrCodeRateLimited      = 42901
	ErrCodeInternal         = 50000
	ErrCodeMediaUpload      = 50201
	ErrCodeStoreUnavailable = 50301
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

// APIResponse is the JSON envelope of every successful request.
type APIResponse struct {
	StatusCode int         `json:"statusCode"`
	Data       interface{} `json:"data"`
	Message    string      `json:"message"`
	Success    bool        `json:"success"`
}

// NewAPIResponse builds a success envelope. Success is derived from the status code.
func NewAPIResponse(statusCode int, data interface{}, message string) APIResponse {
	return APIResponse{
		StatusCode: statusCode,
		Data:       data,
		Message:    message,
		Success:    statusCode < 400,
	}
}
