package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/oasislabs/ready-layer-two/attestation"
	"github.com/oasislabs/ready-layer-two/cmd/common"
	"github.com/oasislabs/ready-layer-two/crypto"
	"github.com/oasislabs/ready-layer-two/protocol"
	"github.com/oasislabs/ready-layer-two/services"
	"github.com/spf13/cobra"
)

type attestOptions struct {
	measurement string
	mode        string
	tdxURL      string
}

func (a *attestOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&a.measurement, "measurement", "", "Measurement of this evaluation program (hex)")
	cmd.Flags().StringVar(&a.mode, "attestation", "none", "Attestation mode: none, dummy, or tdx")
	cmd.Flags().StringVar(&a.tdxURL, "tdx-url", "", "Remote TDX attestation service URL")
	cmd.MarkFlagRequired("measurement")
}

// report attests this program to the coordinator behind client.
func (a *attestOptions) report(ctx context.Context, client *services.Client) (protocol.AttestationReport, error) {
	measurement, err := hex.DecodeString(a.measurement)
	if err != nil {
		return protocol.AttestationReport{}, fmt.Errorf("invalid measurement: %w", err)
	}

	cfg := common.AttestationConfig{Mode: a.mode, TDXRemoteURL: a.tdxURL}
	provider := common.NewAttestationProvider(cfg, measurement)
	if provider == nil {
		return protocol.AttestationReport{Measurement: measurement}, nil
	}

	audience, err := client.Identity(ctx)
	if err != nil {
		return protocol.AttestationReport{}, fmt.Errorf("could not fetch coordinator identity: %w", err)
	}
	return attestation.AttestEvaluation(provider, audience, measurement)
}

func newEvaluateCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Commands for the evaluation program",
	}
	cmd.AddCommand(
		newEvaluateFetchCommand(opts),
		newEvaluateOpenCommand(),
		newEvaluateAnnounceCommand(opts),
	)
	return cmd
}

func newEvaluateFetchCommand(opts *globalOptions) *cobra.Command {
	attest := &attestOptions{}
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the test dataset key and all submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			client := opts.client()

			report, err := attest.report(ctx, client)
			if err != nil {
				return err
			}
			secrets, err := client.BeginEvaluation(ctx, report)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), secrets)
		},
	}
	attest.register(cmd)
	return cmd
}

func newEvaluateOpenCommand() *cobra.Command {
	var secretsPath, name, in, out string
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Decrypt a submission, or the test dataset when --name is empty",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(secretsPath)
			if err != nil {
				return err
			}
			secrets, err := protocol.UnmarshalMessage[protocol.EvaluationSecrets](data)
			if err != nil {
				return fmt.Errorf("invalid secrets file: %w", err)
			}

			target := secrets.TestDataset
			if name != "" {
				sub, ok := secrets.Submissions[name]
				if !ok {
					return fmt.Errorf("no submission from %q", name)
				}
				target = sub
			}

			ciphertext, err := os.ReadFile(in)
			if err != nil {
				return err
			}
			plaintext, err := crypto.OpenEnvelope(ciphertext, &crypto.EnvelopeKey{
				Key: target.Cipher.Key,
				IV:  target.Cipher.IV,
				Tag: target.Cipher.Tag,
			})
			if err != nil {
				return err
			}
			return os.WriteFile(out, plaintext, 0o600)
		},
	}
	cmd.Flags().StringVar(&secretsPath, "secrets", "", "Output of evaluate fetch")
	cmd.Flags().StringVar(&name, "name", "", "Participant whose submission to open")
	cmd.Flags().StringVar(&in, "in", "", "Ciphertext file")
	cmd.Flags().StringVar(&out, "out", "", "Where to write the plaintext")
	cmd.MarkFlagRequired("secrets")
	cmd.MarkFlagRequired("in")
	cmd.MarkFlagRequired("out")
	return cmd
}

func newEvaluateAnnounceCommand(opts *globalOptions) *cobra.Command {
	attest := &attestOptions{}
	var winner string
	cmd := &cobra.Command{
		Use:   "announce",
		Short: "Announce the winner",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			client := opts.client()

			report, err := attest.report(ctx, client)
			if err != nil {
				return err
			}
			if err := client.AnnounceWinner(ctx, report, winner); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "announced %s\n", winner)
			return nil
		},
	}
	attest.register(cmd)
	cmd.Flags().StringVar(&winner, "winner", "", "Name of the winning participant")
	cmd.MarkFlagRequired("winner")
	return cmd
}
