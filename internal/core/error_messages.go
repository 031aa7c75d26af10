package core

// error_messages.go maps technical errors to user-facing messages with codes
// for support reference. Users quote the code; support looks it up here.
//
// # Resource Errors (RES001-RES099)
//
//	RES001 - Not found: the record does not exist or belongs to someone else
//	RES002 - Conflict: the record was changed by another request
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key            Patterns: "duplicate key"
//	DB002 - Unique constraint        Patterns: "unique constraint", "violates unique"
//	DB004 - Connection refused       Patterns: "connection refused"
//	DB005 - Connection reset         Patterns: "connection reset"
//	DB006 - Timeout                  Patterns: "timeout"
//	DB007 - Deadlock                 Patterns: "deadlock"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid date            Patterns: "invalid date"
//	VAL002 - Invalid number          Patterns: "invalid number"
//	VAL003 - Required field          Patterns: "required field"
//	VAL006 - Invalid enum            Patterns: "invalid enum"
//	VAL007 - Invalid value           any other ValidationError
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large         Patterns: "file too large"
//	FILE002 - Invalid CSV            Patterns: "invalid csv"
//	FILE003 - Encoding error         Patterns: "encoding error"
//	FILE004 - No file                Patterns: "no file provided"
//	FILE006 - Unsupported type       Patterns: "unsupported file type"
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL002 - System busy             Patterns: "too many concurrent uploads"
//	UPL004 - Request cancelled       Patterns: "context canceled"
//	UPL005 - Request timeout         Patterns: "context deadline exceeded"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the application logs for the
// original technical error.
//
// Typed errors are matched first, then patterns are matched case-insensitively
// using strings.Contains. The first matching pattern wins.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// catalog holds every message by code.
var catalog = map[string]UserMessage{
	"RES001":  {Code: "RES001", Message: "The requested record was not found", Action: "Check the identifier and that you own the record"},
	"RES002":  {Code: "RES002", Message: "The record was changed by another request", Action: "Reload and try again"},
	"DB001":   {Code: "DB001", Message: "An invoice with this number already exists", Action: "Please try again"},
	"DB002":   {Code: "DB002", Message: "A duplicate value was found", Action: "Check for duplicate entries in your file"},
	"DB004":   {Code: "DB004", Message: "Unable to connect to database", Action: "Please try again in a few moments"},
	"DB005":   {Code: "DB005", Message: "Database connection was interrupted", Action: "Please try again"},
	"DB006":   {Code: "DB006", Message: "The database took too long to answer", Action: "Try again later"},
	"DB007":   {Code: "DB007", Message: "Database was busy with conflicting operations", Action: "Please try again"},
	"VAL001":  {Code: "VAL001", Message: "A date could not be read", Action: "Use YYYY-MM-DD or MM/DD/YYYY"},
	"VAL002":  {Code: "VAL002", Message: "A quantity or price could not be read", Action: "Use plain numbers such as 3 or 2.50"},
	"VAL003":  {Code: "VAL003", Message: "A required value is missing", Action: "Fill in description, quantity and price for every item"},
	"VAL006":  {Code: "VAL006", Message: "Value is not in the allowed list", Action: "Check the allowed status values"},
	"VAL007":  {Code: "VAL007", Message: "The request contains an invalid value", Action: "Correct the highlighted field and try again"},
	"FILE001": {Code: "FILE001", Message: "File exceeds maximum size limit", Action: "Split the file into smaller uploads"},
	"FILE002": {Code: "FILE002", Message: "File could not be read as a table", Action: "Ensure the file is comma-separated and properly quoted"},
	"FILE003": {Code: "FILE003", Message: "File contains invalid characters", Action: "Save the file with UTF-8 encoding"},
	"FILE004": {Code: "FILE004", Message: "No file was selected", Action: "Attach a CSV file in the \"file\" field"},
	"FILE006": {Code: "FILE006", Message: "Only CSV and XLSX files are allowed", Action: "Export your sheet as CSV and upload it again"},
	"UPL002":  {Code: "UPL002", Message: "Other imports are still running", Action: "Please wait a moment and try again"},
	"UPL004":  {Code: "UPL004", Message: "Request was cancelled", Action: "Please try again"},
	"UPL005":  {Code: "UPL005", Message: "Request timed out", Action: "Try a smaller file or check your connection"},
	"ERR000":  {Code: "ERR000", Message: "An unexpected error occurred", Action: "Please try again or contact support"},
}

// patterns are matched in order against the lowercased error text.
var patterns = []struct{ text, code string }{
	{"duplicate key", "DB001"},
	{"unique constraint", "DB002"},
	{"violates unique", "DB002"},
	{"connection refused", "DB004"},
	{"connection reset", "DB005"},
	{"context deadline exceeded", "UPL005"},
	{"timeout", "DB006"},
	{"deadlock", "DB007"},
	{"invalid date", "VAL001"},
	{"invalid number", "VAL002"},
	{"required field", "VAL003"},
	{"invalid enum", "VAL006"},
	{"file too large", "FILE001"},
	{"invalid csv", "FILE002"},
	{"encoding error", "FILE003"},
	{"no file provided", "FILE004"},
	{"unsupported file type", "FILE006"},
	{"too many concurrent uploads", "UPL002"},
	{"context canceled", "UPL004"},
}

// MapError converts a technical error to a user-friendly message.
//
//	msg := MapError(&NotFoundError{Resource: "invoice", ID: id})
//	// msg.Code == "RES001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if errors.Is(err, ErrNotFound) {
		return catalog["RES001"]
	}
	if errors.Is(err, ErrConflict) {
		var ce *ConflictError
		if errors.As(err, &ce) && ce.Field != "" {
			return matchPattern(err, "RES002")
		}
		return catalog["RES002"]
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return matchPattern(err, "VAL007")
	}
	return matchPattern(err, "ERR000")
}

func matchPattern(err error, fallback string) UserMessage {
	text := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(text, p.text) {
			return catalog[p.code]
		}
	}
	return catalog[fallback]
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	return err != nil && MapError(err).Code != "ERR000"
}
