package llm

import "context"

// tagKey keys the request Tag in a context.
type tagKey struct{}

// Tag describes who a model request is made for. Providers that accept an
// end-user identifier send Subject along; the event log records Purpose.
type Tag struct {
	Purpose string
	Subject string
}

// PurposeUnknown labels requests made without WithPurpose.
const PurposeUnknown = "unknown"

func tagFrom(ctx context.Context) Tag {
	t, _ := ctx.Value(tagKey{}).(Tag)
	return t
}

// WithPurpose labels the requests made with ctx, e.g. "session-feedback".
func WithPurpose(ctx context.Context, purpose string) context.Context {
	t := tagFrom(ctx)
	t.Purpose = purpose
	return context.WithValue(ctx, tagKey{}, t)
}

// WithSubject names the end user the requests made with ctx are for.
func WithSubject(ctx context.Context, subject string) context.Context {
	t := tagFrom(ctx)
	t.Subject = subject
	return context.WithValue(ctx, tagKey{}, t)
}

// PurposeFrom returns the purpose label of ctx or PurposeUnknown.
func PurposeFrom(ctx context.Context) string {
	if p := tagFrom(ctx).Purpose; p != "" {
		return p
	}
	return PurposeUnknown
}

// SubjectFrom returns the end user of ctx, empty when none was set.
func SubjectFrom(ctx context.Context) string {
	return tagFrom(ctx).Subject
}
