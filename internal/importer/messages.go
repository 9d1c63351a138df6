package importer

// messages.go maps import errors to user-facing messages with a support code.
//
// # Error Codes Reference
//
// Import kinds are matched with errors.Is:
//
//	CFG001 - Database settings are not configured
//	REQ001 - Table or CSV path missing from the request
//	FILE001 - CSV file not found
//	FILE002 - CSV path is not a regular file
//	FILE003 - CSV larger than IMPORT_MAX_FILE_SIZE
//	FILE004 - CSV could not be read or decoded
//	SCH001 - Table missing or has no insertable columns
//	VAL001 - A CSV row is wider than the table
//	MRG001 - A merge procedure is missing from the database
//	MRG002 - A merge procedure failed
//	MRG003 - A destructive procedure was refused
//	IMP001 - An import into this table is already running
//	IMP002 - Too many imports running
//	IMP003 - Import ID unknown or expired
//
// Driver errors are matched case-insensitively with strings.Contains, first
// match wins. Insert and merge failures consult these patterns before
// falling back to their own kind:
//
//	DB001 - Insert failed (fallback for ErrInsertFailure)
//	DB002 - Connection refused or reset
//	DB003 - Timeout
//	DB004 - Duplicate key
//	DB005 - Value too long for column
//	DB006 - Value has the wrong type for column
//	DB007 - Deadlock
//
// ERR000 is the fallback; check the logs for the technical error.

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

type kindMessage struct {
	kind error
	msg  UserMessage

	// patternsFirst lets a specific driver pattern win over the generic kind.
	patternsFirst bool
}

var kindMessages = []kindMessage{
	{
		kind: ErrNotConfigured,
		msg: UserMessage{
			Message: "Database settings are not configured",
			Action:  "Set DB_NAME and DB_USER (and DB_DRIVER if not MySQL)",
			Code:    "CFG001",
		},
	},
	{
		kind: ErrInvalidRequest,
		msg: UserMessage{
			Message: "The import request is incomplete or invalid",
			Action:  "Select a staging table and a CSV file",
			Code:    "REQ001",
		},
	},
	{
		kind: ErrFileNotFound,
		msg: UserMessage{
			Message: "CSV file not found",
			Action:  "Check the path; it is resolved on the server",
			Code:    "FILE001",
		},
	},
	{
		kind: ErrNotAFile,
		msg: UserMessage{
			Message: "The CSV path is not a file",
			Action:  "Select a file, not a directory",
			Code:    "FILE002",
		},
	},
	{
		kind: ErrFileTooLarge,
		msg: UserMessage{
			Message: "CSV exceeds the maximum import size",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE003",
		},
	},
	{
		kind: ErrReadFailure,
		msg: UserMessage{
			Message: "The CSV file could not be read",
			Action:  "Check file permissions and IMPORT_ENCODING",
			Code:    "FILE004",
		},
	},
	{
		kind: ErrSchemaLookup,
		msg: UserMessage{
			Message: "Could not load columns for the target table",
			Action:  "Verify the table exists and has insertable columns",
			Code:    "SCH001",
		},
	},
	{
		kind: ErrRowWidthExceeded,
		msg: UserMessage{
			Message: "A CSV row has more columns than the table",
			Action:  "Remove extra columns or pick the matching export table. No rows were inserted",
			Code:    "VAL001",
		},
	},
	{
		kind: ErrMergeRoutineMissing,
		msg: UserMessage{
			Message: "A merge procedure is missing from the database",
			Action:  "Install the merge procedures, then re-run the merge. Appended rows were kept",
			Code:    "MRG001",
		},
	},
	{
		kind: ErrDestructiveRoutine,
		msg: UserMessage{
			Message: "Refused to run a destructive procedure",
			Action:  "Remove it from the merge step list",
			Code:    "MRG003",
		},
	},
	{
		kind:          ErrMergeFailure,
		patternsFirst: true,
		msg: UserMessage{
			Message: "A merge procedure failed",
			Action:  "Check the database logs. Appended rows were kept",
			Code:    "MRG002",
		},
	},
	{
		kind:          ErrInsertFailure,
		patternsFirst: true,
		msg: UserMessage{
			Message: "Rows could not be inserted",
			Action:  "Check the CSV against the table's column types",
			Code:    "DB001",
		},
	},
	{
		kind: ErrImportInProgress,
		msg: UserMessage{
			Message: "An import into this table is already running",
			Action:  "Wait for it to finish, then try again",
			Code:    "IMP001",
		},
	},
	{
		kind: ErrTooManyImports,
		msg: UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "IMP002",
		},
	},
	{
		kind: ErrImportNotFound,
		msg: UserMessage{
			Message: "Import not found",
			Action:  "The import may have expired. Please start a new import",
			Code:    "IMP003",
		},
	},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgConnection = UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB002",
	}
	msgTimeout = UserMessage{
		Message: "Database operation timed out",
		Action:  "Please try again later",
		Code:    "DB003",
	}
	msgDuplicate = UserMessage{
		Message: "A row duplicates an existing key",
		Action:  "Remove rows that were already imported",
		Code:    "DB004",
	}
	msgTooLong = UserMessage{
		Message: "A value is too long for its column",
		Action:  "Check that CSV columns are in table order",
		Code:    "DB005",
	}
	msgBadValue = UserMessage{
		Message: "A value does not match its column type",
		Action:  "Check that CSV columns are in table order",
		Code:    "DB006",
	}
	msgDeadlock = UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB007",
	}
)

// errorPatterns covers MySQL, PostgreSQL, and SQL Server wording.
var errorPatterns = []errorPattern{
	{"connection refused", msgConnection},
	{"connection reset", msgConnection},
	{"bad connection", msgConnection},
	{"timeout", msgTimeout},
	{"context deadline exceeded", msgTimeout},
	{"duplicate entry", msgDuplicate},
	{"duplicate key", msgDuplicate},
	{"data too long", msgTooLong},
	{"value too long", msgTooLong},
	{"would be truncated", msgTooLong},
	{"incorrect integer value", msgBadValue},
	{"incorrect date", msgBadValue},
	{"invalid input syntax", msgBadValue},
	{"conversion failed", msgBadValue},
	{"error converting", msgBadValue},
	{"deadlock", msgDeadlock},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-friendly message. Import kinds are
// matched first, then driver error patterns; unknown errors map to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, km := range kindMessages {
		if !errors.Is(err, km.kind) {
			continue
		}
		if km.patternsFirst {
			if msg, ok := matchPattern(err); ok {
				return msg
			}
		}
		return km.msg
	}

	if msg, ok := matchPattern(err); ok {
		return msg
	}
	return defaultMessage
}

func matchPattern(err error) (UserMessage, bool) {
	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg, true
		}
	}
	return UserMessage{}, false
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
