// Package core provides the business logic for CSV reconciliation.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. When users encounter errors, they can quote the error code to
// support staff for faster diagnosis.
//
// Error codes are grouped by category:
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key: A record with this ID already exists
//	DB002 - Connection refused: Unable to connect to the database
//	DB003 - Timeout: Database operation timed out
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the maximum size limit
//	FILE002 - Empty file: The file has no header row
//	FILE003 - Unsupported format: Only .csv and .xlsx are accepted
//	FILE004 - No file: No file was attached to the request
//
// # Sync Errors (SYNC001-SYNC099)
//
//	SYNC001 - Session expired: Pending sync not found
//	SYNC002 - Batch integrity: Duplicate customer number within one batch
//	SYNC003 - Cancelled: The request was cancelled or timed out
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//
// Patterns are matched case-insensitively with strings.Contains; the first
// matching pattern wins, so specific patterns come before general ones.
package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrPendingNotFound reports a staged sync that is missing or expired.
var ErrPendingNotFound = errors.New("pending sync not found or expired")

// ErrFileTooLarge reports an upload over the configured size limit.
var ErrFileTooLarge = errors.New("file too large")

// ErrNoFile reports a request that carried no file.
var ErrNoFile = errors.New("no file provided")

// PendingExpiredError carries the expiry detail for a staged sync that was
// reaped by the janitor before the reviewer acted.
type PendingExpiredError struct {
	SyncID    string
	ExpiredAt time.Time
}

func (e *PendingExpiredError) Error() string {
	return fmt.Sprintf("pending sync %s expired at %s", e.SyncID, e.ExpiredAt.Format(time.RFC3339))
}

func (e *PendingExpiredError) Unwrap() error { return ErrPendingNotFound }

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Sync session errors
	{
		pattern: "pending sync",
		msg: UserMessage{
			Message: "This sync session has expired or does not exist",
			Action:  "Upload the file again to start a new sync",
			Code:    "SYNC001",
		},
	},
	{
		pattern: "duplicate customer_number",
		msg: UserMessage{
			Message: "The batch contains the same customer twice",
			Action:  "This indicates a processing fault; contact support with the error code",
			Code:    "SYNC002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The request was cancelled",
			Action:  "Please try again",
			Code:    "SYNC003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "SYNC003",
		},
	},

	// File errors
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "The file exceeds the maximum allowed size",
			Action:  "Split the export into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "no header row",
		msg: UserMessage{
			Message: "The file is empty",
			Action:  "Upload an export with a header row and data rows",
			Code:    "FILE002",
		},
	},
	{
		pattern: "unsupported file format",
		msg: UserMessage{
			Message: "This file type is not supported",
			Action:  "Upload a .csv or .xlsx export",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was attached",
			Action:  "Select an export file to upload",
			Code:    "FILE004",
		},
	},

	// Database errors
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Review the change list for customers that were already applied",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the database",
			Action:  "Please try again in a few moments",
			Code:    "DB002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The database operation timed out",
			Action:  "Please try again",
			Code:    "DB003",
		},
	},
}

// MapError converts a technical error to a user-friendly message.
// Returns a generic message with code ERR000 if no pattern matches.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{
			Message: "Operation completed",
			Code:    "OK",
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(errStr, p.pattern) {
			return p.msg
		}
	}

	return UserMessage{
		Message: "An unexpected error occurred",
		Action:  "Please try again or contact support",
		Code:    "ERR000",
	}
}
