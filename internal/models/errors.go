package models

import "fmt"

// DataFormatError 数据格式错误类型
type DataFormatError struct {
	Field   string
	Message string
	Err     error
}

func (e *DataFormatError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DataFormatError) Unwrap() error {
	return e.Err
}
