package core

import "errors"

const (
	resultError   uint32 = 0x80000000
	resultWarning uint32 = 0x40000000
)

// Result carries success, warning or error status plus the id of its
// message in Errors. The zero value is OK.
//
// Once an error is set a warning is never recorded over it, and further
// errors are appended to the existing message. Reading the message with
// Message or Err removes it from the registry.
type Result struct {
	id uint32
}

// OK returns a Result without error or warning.
func OK() Result {
	return Result{}
}

// Error returns a Result with msg set as its error.
func Error(msg string) Result {
	var result Result
	result.SetError(msg)
	return result
}

// IsOk reports whether no error is set. Warnings do not count.
func (result Result) IsOk() bool {
	return result.id&resultError == 0
}

// HaveWarning reports whether a warning is set and no error replaced it.
func (result Result) HaveWarning() bool {
	return result.id&resultWarning != 0
}

// ID returns the raw id including flag bits. It does not identify the
// kind of error.
func (result Result) ID() uint32 {
	return result.id
}

// SetError records msg as the error. Do not end msg with a period.
func (result *Result) SetError(msg string) {
	if !result.IsOk() {
		Errors.AppendMessage(result.id, "Multiple errors: "+msg)
		return
	}
	if result.HaveWarning() {
		Errors.Take(result.id)
	}
	result.id = Errors.Record(msg) | resultError
}

// SetWarning records msg as a warning unless an error is already set.
func (result *Result) SetWarning(msg string) {
	if !result.IsOk() {
		return
	}
	if result.HaveWarning() {
		Errors.AppendMessage(result.id, msg)
		return
	}
	result.id = Errors.Record(msg) | resultWarning
}

// InsertContext puts msg in front of the current error message.
func (result *Result) InsertContext(msg string) {
	if result.IsOk() {
		result.SetError("Setting context before error")
	}
	Errors.PrependContext(result.id, msg)
}

// Merge folds the message of other into result. An error in other
// becomes an error of result; a warning stays a warning.
func (result *Result) Merge(other Result) {
	switch {
	case !other.IsOk():
		result.SetError(other.Message())
	case other.HaveWarning():
		result.SetWarning(other.Message())
	}
}

// Message returns the error or warning text and removes it from the
// registry. A second call returns an empty string.
func (result Result) Message() string {
	if result.id&(resultError|resultWarning) == 0 {
		return ""
	}
	return Errors.Take(result.id)
}

// Err converts the result into a Go error, consuming its message.
// It returns nil when no error is set; an unread warning stays unread.
func (result Result) Err() error {
	if result.IsOk() {
		return nil
	}
	return errors.New(result.Message())
}
