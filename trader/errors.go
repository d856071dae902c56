// trader/errors.go
package trader

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoActivePosition is returned when an operation targets a symbol with no
// tracked position. No venue calls are made in that case.
var ErrNoActivePosition = errors.New("no active position for symbol")

// ErrPositionAlreadyOpen is returned when opening a symbol that already has a
// tracked position. Overwriting would leak the prior bracket orders.
var ErrPositionAlreadyOpen = errors.New("position already open for symbol")

// ValidationError reports a malformed trade intent before any venue call.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid trade intent: %s: %s", e.Field, e.Msg)
}

// PartialBracketError reports an entry order that filled while one or more
// protective legs failed. The position stays tracked with whatever legs
// exist so an operator can complete the bracket manually.
type PartialBracketError struct {
	Symbol            string
	EntryOrderID      string
	StopOrderID       string // empty if the stop-loss leg failed
	TakeProfitOrderID string // empty if the take-profit leg failed
	Err               error
}

func (e *PartialBracketError) Error() string {
	var missing []string
	if e.StopOrderID == "" {
		missing = append(missing, "stop-loss")
	}
	if e.TakeProfitOrderID == "" {
		missing = append(missing, "take-profit")
	}
	return fmt.Sprintf("partial bracket for %s: entry %s filled but %s missing: %v",
		e.Symbol, e.EntryOrderID, strings.Join(missing, ", "), e.Err)
}

func (e *PartialBracketError) Unwrap() error { return e.Err }
