package middlewares

// gin context keys
const (
	CtxRequestID  = "request_id"
	CtxUserID     = "auth.userID"
	CtxEmail      = "auth.email"
	CtxCollection = "doc.collection"
	CtxDocID      = "doc.id"
	CtxTaskID     = "task.id"
)
