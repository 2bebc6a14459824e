package usecase

import (
	"errors"
	"fmt"
)

var (
	// 候補の識別子が別々の注文に一致した
	ErrAmbiguousOrder = errors.New("ambiguous order identifiers")
	// 在庫に反映できる明細が無い
	ErrOrderWithoutItems = errors.New("order without items")
)

type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}
