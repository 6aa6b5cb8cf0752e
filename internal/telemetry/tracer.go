package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on vault lifecycle and API spans.
const (
	AttrVaultID        = "vault.id"
	AttrVaultPath      = "vault.path"
	AttrVaultMountName = "vault.mount_name"

	AttrHTTPMethod = "http.method"
	AttrHTTPPath   = "http.path"
)

// Span names for operations.
// Format: <component>.<operation>
const (
	SpanVaultUnlock  = "vault.unlock"
	SpanVaultLock    = "vault.lock"
	SpanVaultMount   = "vault.mount"
	SpanVaultUnmount = "vault.unmount"
	SpanVaultCreate  = "vault.create"

	SpanAPIRequest = "api.request"
)

// WithVault returns span options carrying the standard vault attributes.
func WithVault(id, path, mountName string) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.String(AttrVaultID, id),
		attribute.String(AttrVaultPath, path),
		attribute.String(AttrVaultMountName, mountName),
	)
}

// WithRequest returns span options carrying the HTTP request attributes.
func WithRequest(method, path string) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPPath, path),
	)
}

// TraceVaultOp wraps a vault lifecycle operation in a span. ref identifies
// the vault (its id, or its path for a vault that has no id yet). The
// operation's error, if any, is recorded on the span and returned unchanged.
func TraceVaultOp(ctx context.Context, span, ref string, fn func(context.Context) error, opts ...trace.SpanStartOption) error {
	opts = append(opts, trace.WithAttributes(attribute.String(AttrVaultID, ref)))
	ctx, sp := StartSpan(ctx, span, opts...)
	defer sp.End()

	if err := fn(ctx); err != nil {
		RecordError(ctx, err)
		return err
	}
	return nil
}
