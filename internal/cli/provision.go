package cli

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/roach88/tillsync/internal/config"
	"github.com/roach88/tillsync/internal/remote"
)

// ProvisionOptions holds flags for the provision command.
type ProvisionOptions struct {
	*RootOptions
	Server string
	Tenant string
	Token  string
}

// ProvisionResult is the output of a successful provisioning.
type ProvisionResult struct {
	Server       string `json:"server"`
	Tenant       string `json:"tenant"`
	RegisterID   string `json:"register_id,omitempty"`
	RegisterName string `json:"register_name,omitempty"`
	Credentials  string `json:"credentials"`
}

// WriteText renders the result for humans.
func (r ProvisionResult) WriteText(w io.Writer) error {
	name := r.RegisterName
	if name == "" {
		name = r.RegisterID
	}
	_, err := fmt.Fprintf(w, "Device provisioned for tenant %s at %s (register %s).\nCredentials written to %s\n",
		r.Tenant, r.Server, name, r.Credentials)
	return err
}

// NewProvisionCommand creates the provision command.
func NewProvisionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProvisionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Redeem a setup code for device credentials",
		Long: `Redeem a one-time setup code issued by the central authority and write the
returned credentials to the credential record.

Setup codes are case-insensitive and may contain dashes.

Example:
  tillsync provision --server https://till.example.com --tenant club --token ABCD-1234`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvision(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Server, "server", "", "central authority base URL (required)")
	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "tenant slug (required)")
	cmd.Flags().StringVar(&opts.Token, "token", "", "setup code (required)")
	_ = cmd.MarkFlagRequired("server")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("token")

	return cmd
}

func runProvision(opts *ProvisionOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	out := newFormatter(opts.RootOptions, cmd)

	if remote.NormalizeSetupCode(opts.Token) == "" {
		return NewExitError(ExitCommandError, "setup code is empty")
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	out.VerboseLog("Redeeming setup code at %s", remote.TenantBase(opts.Server, opts.Tenant))
	creds, err := remote.Provision(ctx, opts.Server, opts.Tenant, opts.Token)
	if err != nil {
		msg := provisionFailure(err)
		_ = out.Error(CodeRemote, msg, err.Error())
		return WrapExitError(ExitFailure, msg, err)
	}

	file := config.CredentialFile{Path: cfg.CredentialsPath}
	if err := file.Save(config.Credentials{
		ServerURL: creds.ServerURL,
		Tenant:    creds.Tenant,
		APIKey:    creds.APIKey,
	}); err != nil {
		return WrapExitError(ExitCommandError, "failed to write credentials", err)
	}

	return out.Success(ProvisionResult{
		Server:       creds.ServerURL,
		Tenant:       creds.Tenant,
		RegisterID:   creds.RegisterID,
		RegisterName: creds.RegisterName,
		Credentials:  cfg.CredentialsPath,
	})
}

// provisionFailure names the most likely cause of a failed provisioning.
func provisionFailure(err error) string {
	var te *remote.TransientError
	if !errors.As(err, &te) {
		return "provisioning failed"
	}
	switch te.StatusCode {
	case http.StatusNotFound:
		return "setup code invalid"
	case http.StatusGone:
		return "setup code expired"
	case 0:
		return "central authority unreachable"
	default:
		return "provisioning failed"
	}
}
