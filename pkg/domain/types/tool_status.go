package types

// ToolStatus is the outcome of a single tool call
type ToolStatus string

const (
	ToolStatusOK        ToolStatus = "ok"
	ToolStatusFailed    ToolStatus = "failed"
	ToolStatusTimeout   ToolStatus = "timeout"
	ToolStatusInvalid   ToolStatus = "invalid"
	ToolStatusCancelled ToolStatus = "cancelled"
)

// String returns the string representation of ToolStatus
func (s ToolStatus) String() string {
	return string(s)
}
