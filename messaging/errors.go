package messaging

import "errors"

// Static errors for the messaging client
var (
	ErrBaseURLEmpty     = errors.New("messaging base URL cannot be empty")
	ErrAPIKeyEmpty      = errors.New("messaging API key cannot be empty")
	ErrFromNumberEmpty  = errors.New("messaging from number cannot be empty")
	ErrToNumberEmpty    = errors.New("recipient number cannot be empty")
	ErrTextEmpty        = errors.New("message text cannot be empty")
	ErrSendRejected     = errors.New("provider rejected message")
	ErrMissingMessageID = errors.New("provider response missing message id")
)
