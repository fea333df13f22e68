// ABOUTME: Request context helpers carrying the authenticated operator
// ABOUTME: Provides WithOperator/OperatorFromContext for handlers

package auth

import "context"

type operatorKey struct{}

// WithOperator returns a context carrying the authenticated operator.
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, operatorKey{}, operator)
}

// OperatorFromContext returns the operator, or "" for unauthenticated requests.
func OperatorFromContext(ctx context.Context) string {
	op, _ := ctx.Value(operatorKey{}).(string)
	return op
}
