package shared

import "time"

// NoticeTimeout is how long the UI shows a dismissable notice.
const NoticeTimeout = 10 * time.Second

// Notice is a one-time, dismissable message returned alongside an API error.
type Notice struct {
	Kind        string `json:"kind"`
	Message     string `json:"message"`
	Dismissable bool   `json:"dismissable"`
	TimeoutMS   int64  `json:"timeoutMs"`
}

// ErrorNotice builds the notice shown for a failed operation.
func ErrorNotice(message string) Notice {
	return Notice{Kind: "error", Message: message, Dismissable: true, TimeoutMS: NoticeTimeout.Milliseconds()}
}

// SuccessNotice builds the notice shown after a successful save.
func SuccessNotice(message string) Notice {
	return Notice{Kind: "success", Message: message, Dismissable: true, TimeoutMS: NoticeTimeout.Milliseconds()}
}
