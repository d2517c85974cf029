// ==============================
// File: internal/trade/errors.go
// ==============================
package trade

import (
	"errors"
	"fmt"
)

// Reason — машинно-различимая категория отказа торговой операции.
// Слой представления выбирает текст сообщения по причине, а не по
// подстрокам текста ошибки.
type Reason string

const (
	ReasonInvalidAddress        Reason = "invalid_address"
	ReasonInvalidAmount         Reason = "invalid_amount"
	ReasonInsufficientBalance   Reason = "insufficient_balance"
	ReasonInsufficientForFees   Reason = "insufficient_for_fees"
	ReasonNoTokenBalance        Reason = "no_token_balance"
	ReasonTokenNotFound         Reason = "token_not_found"
	ReasonNoRoute               Reason = "no_route"
	ReasonServiceUnavailable    Reason = "service_unavailable"
	ReasonApprovalFailed        Reason = "approval_failed"
	ReasonAccountCreationFailed Reason = "account_creation_failed"
	ReasonExecutionFailed       Reason = "execution_failed"
	ReasonSessionInconsistent   Reason = "session_inconsistent"
)

// Error — типизированная ошибка торгового сервиса.
type Error struct {
	Reason Reason
	Op     string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// newError создаёт типизированную ошибку операции op.
func newError(reason Reason, op string, err error) *Error {
	return &Error{Reason: reason, Op: op, Err: err}
}

// ReasonOf извлекает категорию из цепочки ошибок.
// Для нетипизированных ошибок возвращает ReasonExecutionFailed.
func ReasonOf(err error) Reason {
	var te *Error
	if errors.As(err, &te) {
		return te.Reason
	}
	return ReasonExecutionFailed
}
