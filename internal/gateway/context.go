package gateway

import "context"

type roundKey struct{}

// WithRound tags ctx with the game round a call belongs to, so recorders can
// attribute calls without widening the Gateway interface.
func WithRound(ctx context.Context, round string) context.Context {
	return context.WithValue(ctx, roundKey{}, round)
}

// RoundFrom returns the round tag set by WithRound, or "".
func RoundFrom(ctx context.Context) string {
	r, _ := ctx.Value(roundKey{}).(string)
	return r
}
