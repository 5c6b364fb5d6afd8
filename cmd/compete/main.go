// Command compete is the command line client for participants and the
// evaluation program.
//
// # Participants
//
//	compete register --name=alice --credential=secret
//	compete sign-in --name=alice --credential=secret > token
//	compete seal --in=model.bin --out=model.enc --url=https://models.example.com/alice > model.json
//	compete submit --token="$(cat token)" --model=model.json
//	compete state
//
// # Evaluation program
//
//	compete evaluate fetch --measurement=<hex> --attestation=tdx > secrets.json
//	compete evaluate open --secrets=secrets.json --name=alice --in=alice.enc --out=alice.bin
//	compete evaluate announce --measurement=<hex> --attestation=tdx --winner=alice
//
// # Utilities
//
//	compete hash --file=train.csv
//	compete hash --file=train.csv --check=train
//	compete events
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oasislabs/ready-layer-two/crypto"
	"github.com/oasislabs/ready-layer-two/protocol"
	"github.com/oasislabs/ready-layer-two/services"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	registryURL    string
	coordinatorURL string
	timeout        time.Duration
}

func (o *globalOptions) client() *services.Client {
	return services.NewClient(o.registryURL, o.coordinatorURL)
}

func (o *globalOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "compete",
		Short:         "Take part in, or evaluate, an attested competition",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&opts.registryURL, "registry", "r", envOr("COMPETE_REGISTRY", "http://localhost:8080"), "Participant registry URL")
	root.PersistentFlags().StringVarP(&opts.coordinatorURL, "coordinator", "c", envOr("COMPETE_COORDINATOR", "http://localhost:8081"), "Coordinator URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Request timeout")

	root.AddCommand(
		newRegisterCommand(opts),
		newSignInCommand(opts),
		newSealCommand(),
		newSubmitCommand(opts),
		newStateCommand(opts),
		newEventsCommand(opts),
		newHashCommand(opts),
		newEvaluateCommand(opts),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRegisterCommand(opts *globalOptions) *cobra.Command {
	var name, credential string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account with the participant registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			if err := opts.client().Register(ctx, name, credential); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Account name")
	cmd.Flags().StringVar(&credential, "credential", "", "Account credential")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newSignInCommand(opts *globalOptions) *cobra.Command {
	var name, credential, audience string
	cmd := &cobra.Command{
		Use:   "sign-in",
		Short: "Obtain a token for the coordinator",
		Long:  "Obtain a token for the coordinator. The audience defaults to the identity the coordinator reports.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			client := opts.client()

			if audience == "" {
				var err error
				if audience, err = client.Identity(ctx); err != nil {
					return fmt.Errorf("could not fetch coordinator identity: %w", err)
				}
			}

			token, err := client.SignIn(ctx, name, credential, audience)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Account name")
	cmd.Flags().StringVar(&credential, "credential", "", "Account credential")
	cmd.Flags().StringVar(&audience, "audience", "", "Identity of the service the token is for")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newSealCommand() *cobra.Command {
	var in, out, url string
	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Encrypt a file and print its submission descriptor",
		RunE: func(cmd *cobra.Command, args []string) error {
			plaintext, err := os.ReadFile(in)
			if err != nil {
				return err
			}
			ciphertext, key, err := crypto.SealEnvelope(plaintext)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, ciphertext, 0o600); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), protocol.EncryptedData{
				URL:    url,
				Cipher: protocol.Aes256GcmParams{Key: key.Key, IV: key.IV, Tag: key.Tag},
			})
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "File to encrypt")
	cmd.Flags().StringVar(&out, "out", "", "Where to write the ciphertext")
	cmd.Flags().StringVar(&url, "url", "", "URL the ciphertext will be published at")
	cmd.MarkFlagRequired("in")
	cmd.MarkFlagRequired("out")
	cmd.MarkFlagRequired("url")
	return cmd
}

func newSubmitCommand(opts *globalOptions) *cobra.Command {
	var token, modelPath string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a sealed model",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(modelPath)
			if err != nil {
				return err
			}
			model, err := protocol.UnmarshalMessage[protocol.EncryptedData](data)
			if err != nil {
				return fmt.Errorf("invalid model descriptor: %w", err)
			}

			ctx, cancel := opts.context(cmd)
			defer cancel()
			if err := opts.client().Submit(ctx, token, *model); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "submitted")
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Token from sign-in")
	cmd.Flags().StringVar(&modelPath, "model", "", "Descriptor printed by seal")
	cmd.MarkFlagRequired("token")
	cmd.MarkFlagRequired("model")
	return cmd
}

func newStateCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the public state of the competition",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			state, err := opts.client().State(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), state)
		},
	}
}

func newEventsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "List the public facts recorded by the coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			events, err := opts.client().Events(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), events)
		},
	}
}

func newHashCommand(opts *globalOptions) *cobra.Command {
	var file, check string
	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Print the SHA-256 hash of a file, as used in competition descriptors",
		Long: `Print the SHA-256 hash of a file.

With --check=train or --check=program the hash is compared against the
competition's public state and the command fails on a mismatch.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			digest, err := crypto.HashFile(file)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(digest))
			if check == "" {
				return nil
			}

			ctx, cancel := opts.context(cmd)
			defer cancel()
			state, err := opts.client().State(ctx)
			if err != nil {
				return err
			}

			var expected protocol.AuthenticatedData
			switch check {
			case "train":
				expected = state.TrainDataset
			case "program":
				expected = state.EvaluationProgram
			default:
				return fmt.Errorf("unknown --check %q (want train or program)", check)
			}
			if !expected.Matches(digest) {
				return fmt.Errorf("%s does not match the %s hash %x published for %s", file, check, expected.Hash, expected.URL)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "File to hash")
	cmd.Flags().StringVar(&check, "check", "", "Compare against the published train or program hash")
	cmd.MarkFlagRequired("file")
	return cmd
}
