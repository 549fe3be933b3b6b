package app

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stacklok/nearby-sync/internal/directory"
)

func newCredentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage directory client secrets in the OS keyring",
	}

	setCmd := &cobra.Command{
		Use:   "set CLIENT_ID",
		Short: "Store the client secret for CLIENT_ID",
		Long: `Store the directory client secret for CLIENT_ID in the OS keyring. The secret
is read from the terminal without echo, or from stdin when it is not a terminal.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readSecret(cmd)
			if err != nil {
				return err
			}
			if err := directory.StoreClientSecret(args[0], secret); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Stored client secret for %s\n", args[0])
			return err
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete CLIENT_ID",
		Short: "Remove the client secret for CLIENT_ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return directory.DeleteClientSecret(args[0])
		},
	}

	cmd.AddCommand(setCmd, deleteCmd)
	return cmd
}

func readSecret(cmd *cobra.Command) (string, error) {
	var reader io.Reader
	if term.IsTerminal(int(os.Stdin.Fd())) {
		slog.Info("Reading client secret from terminal...")
		secretReader, err := readerFromTerminal()
		if err != nil {
			return "", err
		}
		reader = secretReader
	} else {
		reader = cmd.InOrStdin()
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read client secret: %w", err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("client secret cannot be empty")
	}
	return secret, nil
}

func readerFromTerminal() (io.Reader, error) {
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return nil, fmt.Errorf("failed to read client secret: %w", err)
	}
	return bytes.NewReader(secret), nil
}
