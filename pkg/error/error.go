package error

// GenericError is implemented by every typed error in this package so the
// recovery middleware can map a panic back to an HTTP response.
type GenericError interface {
	Error() string
	ErrCode() string
	StatusCode() int
}
