// Package contextx 在 context 中传递调用方身份
package contextx

import "context"

type userIDKey struct{}

// WithUserID 将已认证的调用方 ID 写入 context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserID 读取调用方 ID，未认证时为空
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}
