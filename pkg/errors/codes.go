package errors

// ErrorCodeInfo contains metadata about an error code.
type ErrorCodeInfo struct {
	Code            ErrorCode
	Retryable       bool
	Description     string
	SuggestedAction string
}

// ErrorCodeRegistry maps error codes to their metadata.
var ErrorCodeRegistry = map[ErrorCode]ErrorCodeInfo{
	ErrTimeout: {
		Code:            ErrTimeout,
		Retryable:       true,
		Description:     "Decoding exceeded the per-file time limit",
		SuggestedAction: "Raise decode_timeout: voxreel config set decode_timeout 1m",
	},
	ErrContextCancelled: {
		Code:            ErrContextCancelled,
		Retryable:       false,
		Description:     "Operation cancelled by user or system",
		SuggestedAction: "Re-run the command; no partial output was kept",
	},
	ErrParseError: {
		Code:            ErrParseError,
		Retryable:       false,
		Description:     "Filename does not match the naming convention",
		SuggestedAction: "Check filename_pattern and timestamp_layouts: voxreel config show",
	},
	ErrDecodeError: {
		Code:            ErrDecodeError,
		Retryable:       false,
		Description:     "Audio data could not be decoded (corrupt or unsupported)",
		SuggestedAction: "Inspect the file with ffprobe; supported codecs are wav, mp3, flac, ogg",
	},
	ErrEmptyAudio: {
		Code:            ErrEmptyAudio,
		Retryable:       false,
		Description:     "Audio file decoded to zero frames",
		SuggestedAction: "The recording is empty; remove it or re-record",
	},
	ErrIOError: {
		Code:            ErrIOError,
		Retryable:       true,
		Description:     "File could not be read or written",
		SuggestedAction: "Check permissions and free disk space",
	},
	ErrProcessingError: {
		Code:            ErrProcessingError,
		Retryable:       false,
		Description:     "Unclassified processing error",
		SuggestedAction: "Re-run with --debug for details",
	},
}

// IsRetryable returns true if the given error code represents a transient, retryable error.
func IsRetryable(code ErrorCode) bool {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Retryable
	}
	return false
}

// GetSuggestedAction returns the suggested action for the given error code.
func GetSuggestedAction(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.SuggestedAction
	}
	return "Re-run with --debug for details"
}

// GetDescription returns the human-readable description for the given error code.
func GetDescription(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Description
	}
	return "Unknown error"
}
