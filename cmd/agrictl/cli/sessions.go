package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/guilhermemayrinkal/agribackend/internal/auth"
	"github.com/guilhermemayrinkal/agribackend/internal/identity"
)

// SessionIssuer stores a principal and returns its bearer token.
type SessionIssuer interface {
	Save(ctx context.Context, p auth.Principal) (string, error)
	Revoke(ctx context.Context, token string) error
}

// SessionOptions defines flags for the session issue command.
type SessionOptions struct {
	Kind      string
	ID        string
	CompanyID string
	Stdout    io.Writer
	Stderr    io.Writer
}

// IssueSessionCommand creates a bearer token for local testing and support
// sessions. The token is the only line written to stdout.
func IssueSessionCommand(ctx context.Context, store SessionIssuer, opts SessionOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	principal := auth.Principal{Kind: identity.Kind(opts.Kind), ID: opts.ID, CompanyID: opts.CompanyID}
	token, err := store.Save(ctx, principal)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "session issue: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(opts.Stdout, token)
	return 0
}

// RevokeSessionCommand deletes a bearer token.
func RevokeSessionCommand(ctx context.Context, store SessionIssuer, token string, stderr io.Writer) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	if token == "" {
		_, _ = fmt.Fprintln(stderr, "session revoke: token is required")
		return 1
	}
	if err := store.Revoke(ctx, token); err != nil {
		_, _ = fmt.Fprintf(stderr, "session revoke: %v\n", err)
		return 1
	}
	return 0
}
