package middleware

import "context"

type contextKey string

const (
	ctxDeviceID contextKey = "device_id"
	ctxBranchID contextKey = "branch_id"
)

func DeviceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxDeviceID).(string); ok {
		return v
	}
	return ""
}

func BranchIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxBranchID).(string); ok {
		return v
	}
	return ""
}

// WithDevice injects the authenticated device and its branch into the context.
func WithDevice(ctx context.Context, deviceID, branchID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxDeviceID, deviceID)
	return context.WithValue(ctx, ctxBranchID, branchID)
}
