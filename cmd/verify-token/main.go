// Command verify-token verifies a bearer token using the environment
// configuration of cognitojwt.ConfigFromEnv and prints the resulting
// AuthToken as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	cognitojwt "github.com/ggoodman/cognito-jwt-go"
	"github.com/ggoodman/cognito-jwt-go/autherr"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
)

type flags struct {
	schema  bool
	ips     []string
	verbose bool
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "verify-token [token]",
		Short: "Verify a Cognito (or JWKS-backed) bearer token",
		Long: `verify-token checks a JWT against the signing keys of a Cognito user pool,
an OIDC issuer, a JWKS URL or a local JWKS file, configured through
COGNITO_REGION, COGNITO_USER_POOL_ID, OIDC_ISSUER, JWKS_URI or JWKS_FILE.
The token is read from the first argument, or from stdin when omitted.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.schema {
				return writeSchema(cmd.OutOrStdout())
			}
			return run(cmd, args, f)
		},
	}
	cmd.Flags().BoolVar(&f.schema, "schema", false, "print the JSON Schema of the output and exit")
	cmd.Flags().StringSliceVar(&f.ips, "ip", nil, "request IP address to record on the token (repeatable)")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "log verification details to stderr")
	return cmd
}

func writeSchema(w io.Writer) error {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(new(cognitojwt.AuthToken))
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func readToken(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return strings.TrimSpace(args[0]), nil
	}
	b, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 64<<10))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func run(cmd *cobra.Command, args []string, f flags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var logHandler slog.Handler
	if f.verbose {
		logHandler = slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug})
	}

	raw, err := readToken(cmd, args)
	if err != nil {
		return err
	}

	cfg, err := cognitojwt.ConfigFromEnv()
	if err != nil {
		return err
	}
	v, err := cognitojwt.NewFromConfig(ctx, cfg, nil, logHandler)
	if err != nil {
		return err
	}
	defer v.Close()

	tok, err := v.Verify(ctx, raw, cognitojwt.WithIPs(f.ips...))
	if err != nil {
		if aerr, ok := autherr.As(err); ok {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			_ = enc.Encode(aerr)
		}
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(tok)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "verify-token:", err)
		code := 1
		if errors.Is(err, cognitojwt.ErrInvalidArgument) {
			code = 2
		}
		stop()
		os.Exit(code)
	}
}
