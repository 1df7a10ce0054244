package errprocess

import (
	"errors"
	"fmt"

	"dm_sync_service/pkg/logger"
)

// Kind 錯誤分類，呼叫端依分類決定重試或回滾
type Kind string

const (
	// KindNetwork 網路/持久層暫時性錯誤，重發使用者操作即可重試
	KindNetwork Kind = "network"
	// KindValidation 輸入驗證錯誤，發生在任何狀態變更之前
	KindValidation Kind = "validation"
	// KindSubscription 推送訂閱傳輸錯誤，由連線監管內部回復
	KindSubscription Kind = "subscription"
	// KindProfile 個人資料查詢錯誤，非致命
	KindProfile Kind = "profile"
)

// Error definition error with kind
type Error struct {
	ErrKind Kind
	Msg     string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

// Unwrap return the wrapped cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}

// SetKind log and return a kinded error
func SetKind(kind Kind, errMsg string) error {
	logger.Log.Error(string(kind) + ": " + errMsg)
	return &Error{ErrKind: kind, Msg: errMsg}
}

// Wrap log and wrap cause with a kind
func Wrap(kind Kind, errMsg string, cause error) error {
	e := &Error{ErrKind: kind, Msg: errMsg, Cause: cause}
	logger.Log.Error(e.Error())
	return e
}

// KindOf return the kind of err, empty if not kinded
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.ErrKind
	}
	return ""
}

// IsKind check err belongs to kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
