package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/claims"
	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/models"
	"github.com/spf13/cobra"
)

func newClaimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim chain commands",
	}

	cmd.AddCommand(newClaimCreateCmd())
	cmd.AddCommand(newClaimChainCmd())
	cmd.AddCommand(newClaimRecountCmd())
	return cmd
}

func newClaimCreateCmd() *cobra.Command {
	var (
		configPath  string
		description string
		userID      string
		web         bool
		internal    bool
		alarms      bool
	)

	cmd := &cobra.Command{
		Use:   "create <ref>",
		Short: "File a claim against a record",
		Long: `Creates a new record as a claim against an existing one. The claim
copies the original's applicant and response configuration and takes the
next suffix in the chain (REF-02, REF-03, ...). With --internal, the
claim is converted to the configured internal catalog values instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClaimCreate(cmd, configPath, args[0], description, userID, web, internal, alarms)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "iris.yaml", "path to IRIS config file")
	cmd.Flags().StringVar(&description, "description", "", "claim description (required)")
	cmd.Flags().StringVar(&userID, "user", "cli", "acting user ID")
	cmd.Flags().BoolVar(&web, "web", false, "claim filed by the citizen through the web portal")
	cmd.Flags().BoolVar(&internal, "internal", false, "convert to an internal operator claim")
	cmd.Flags().BoolVar(&alarms, "alarms", true, "raise claim alarms on both ends of the chain")
	cmd.MarkFlagRequired("description")
	return cmd
}

func runClaimCreate(cmd *cobra.Command, configPath, ref, description, userID string, web, internal, alarms bool) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	original, err := getRecord(gormDB, ref)
	if err != nil {
		return err
	}

	announcer, err := buildAnnouncer(cfg, gormDB)
	if err != nil {
		return err
	}

	opts := claims.Options{
		IsWebClaim:         web,
		SetToInternalClaim: internal,
		SetAlarms:          alarms,
	}
	if internal {
		opts.InternalInputChannel = cfg.Claims.InternalInputChannel
		opts.InternalApplicantType = cfg.Claims.InternalApplicantType
		opts.InternalSupport = cfg.Claims.InternalSupport
	}
	if announcer != nil {
		opts.Notifier = announcer
	}

	claim, err := claims.CreateRecordClaim(gormDB, original, userID, description, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created claim %s against %s\n", claim.NormalizedRecordID, ref)
	fmt.Fprintf(out, "Chain position: %d\n", claims.Position(claim))
	return nil
}

func newClaimChainCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "chain <ref>",
		Short: "Show the claim chain a record belongs to",
		Long:  "Lists the full chain root first, from any member's reference.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClaimChain(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "iris.yaml", "path to IRIS config file")
	return cmd
}

func runClaimChain(cmd *cobra.Command, configPath, ref string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	record, err := getRecord(gormDB, ref)
	if err != nil {
		return err
	}

	chain, err := claims.Chain(gormDB, record)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(chain) == 1 {
		fmt.Fprintf(out, "No claims filed against %s\n", chain[0].NormalizedRecordID)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POS\tREF\tSTATE\tCREATED")
	for _, r := range chain {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
			claims.Position(&r), r.NormalizedRecordID,
			models.StateName(r.RecordState), r.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()
	return nil
}

func newClaimRecountCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "recount <ref>",
		Short: "Recount and propagate the chain's claim total",
		Long:  "Recomputes the number of claims in the chain and writes it to every member.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClaimRecount(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "iris.yaml", "path to IRIS config file")
	return cmd
}

func runClaimRecount(cmd *cobra.Command, configPath, ref string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	record, err := getRecord(gormDB, ref)
	if err != nil {
		return err
	}

	total, err := claims.UpdateClaimsNumber(gormDB, record)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Chain of %s has %d claim(s)\n", ref, total)
	return nil
}
