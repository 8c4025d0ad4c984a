package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/deadlines"
	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/derivation"
	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/groups"
	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/lifecycle"
	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/models"
	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/similarity"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newRecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record management commands",
	}

	cmd.AddCommand(newRecordCreateCmd())
	cmd.AddCommand(newRecordListCmd())
	cmd.AddCommand(newRecordShowCmd())
	cmd.AddCommand(newRecordChangeStateCmd())
	cmd.AddCommand(newRecordAutovalidateCmd())
	cmd.AddCommand(newRecordDerivateCmd())
	cmd.AddCommand(newRecordReassignCmd())
	cmd.AddCommand(newRecordSimilarCmd())
	return cmd
}

// generateRecordRef creates a unique citizen-facing reference (IRS + 5 hex).
func generateRecordRef(gormDB *gorm.DB) (string, error) {
	for range 10 {
		b := make([]byte, 3)
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("generate record reference: %w", err)
		}
		ref := "IRS" + strings.ToUpper(hex.EncodeToString(b)[:5])

		var count int64
		if err := gormDB.Model(&models.RecordCard{}).
			Where("normalized_record_id = ?", ref).Count(&count).Error; err != nil {
			return "", fmt.Errorf("check record reference: %w", err)
		}
		if count == 0 {
			return ref, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique record reference")
}

// parseState accepts a state name ("in-resolution") or numeric code.
func parseState(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if models.StateName(n) == "unknown" {
			return 0, fmt.Errorf("unknown state code %d", n)
		}
		return n, nil
	}
	for state := models.StatePendingValidate; state <= models.StateExternalReturned; state++ {
		if models.StateName(state) == s {
			return state, nil
		}
	}
	return 0, fmt.Errorf("unknown state %q", s)
}

func newRecordCreateCmd() *cobra.Command {
	var (
		configPath  string
		themeID     uint
		description string
		channel     string
		inputChan   string
		applicant   uint
		district    uint
		userID      string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new record",
		Long: `Creates a new citizen record on a theme, stamps its answer deadlines,
and routes it to a responsible group through the derivation rules.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordCreate(cmd, configPath, recordCreateOpts{
				ThemeID:      themeID,
				Description:  description,
				Channel:      channel,
				InputChannel: inputChan,
				ApplicantID:  applicant,
				DistrictID:   district,
				UserID:       userID,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "iris.yaml", "path to IRIS config file")
	cmd.Flags().UintVar(&themeID, "theme", 0, "theme (element detail) ID (required)")
	cmd.Flags().StringVar(&description, "description", "", "record description (required)")
	cmd.Flags().StringVar(&channel, "channel", models.ChannelEmail, "response channel (email, sms, letter, none)")
	cmd.Flags().StringVar(&inputChan, "input-channel", "web", "input channel the record arrived through")
	cmd.Flags().UintVar(&applicant, "applicant", 0, "applicant ID")
	cmd.Flags().UintVar(&district, "district", 0, "district ID for the record's location")
	cmd.Flags().StringVar(&userID, "user", "cli", "acting user ID")
	cmd.MarkFlagRequired("theme")
	cmd.MarkFlagRequired("description")
	return cmd
}

type recordCreateOpts struct {
	ThemeID      uint
	Description  string
	Channel      string
	InputChannel string
	ApplicantID  uint
	DistrictID   uint
	UserID       string
}

func runRecordCreate(cmd *cobra.Command, configPath string, opts recordCreateOpts) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	var theme models.ElementDetail
	if err := gormDB.First(&theme, opts.ThemeID).Error; err != nil {
		return fmt.Errorf("theme %d not found", opts.ThemeID)
	}

	ref, err := generateRecordRef(gormDB)
	if err != nil {
		return err
	}

	record := models.RecordCard{
		NormalizedRecordID: ref,
		Description:        opts.Description,
		ElementDetailID:    opts.ThemeID,
		RecordState:        models.StatePendingValidate,
		ResponseChannel:    opts.Channel,
		InputChannel:       opts.InputChannel,
	}
	if opts.ApplicantID != 0 {
		record.ApplicantID = &opts.ApplicantID
	}
	if opts.DistrictID != 0 {
		ub := models.Ubication{DistrictID: &opts.DistrictID}
		if err := gormDB.Create(&ub).Error; err != nil {
			return fmt.Errorf("create ubication: %w", err)
		}
		record.UbicationID = &ub.ID
	}

	if err := gormDB.Create(&record).Error; err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	fmt.Fprintf(out, "Created record %s on theme %q\n", record.NormalizedRecordID, theme.Description)

	if err := deadlines.SetAnsLimits(gormDB, &record, deadlineOpts(cfg)); err != nil {
		return err
	}
	fmt.Fprintf(out, "Answer limit: %s\n", record.AnsLimitDate.Format("2006-01-02 15:04"))

	announcer, err := buildAnnouncer(cfg, gormDB)
	if err != nil {
		return err
	}

	result, err := derivation.Derivate(gormDB, &record, opts.UserID, derivation.Options{
		Notifier: announcer,
	})
	if err != nil {
		return err
	}
	result.Notify()
	if result.Applied {
		fmt.Fprintf(out, "Routed to group %d\n", result.GroupID)
	} else if !result.Found {
		fmt.Fprintln(out, "No derivation rule matched; record is unassigned")
	}

	if record.ResponsibleProfileID != nil {
		similar, err := similarity.SetSimilarRecords(gormDB, &record,
			*record.ResponsibleProfileID, &groups.Permissions{DB: gormDB})
		if err != nil {
			return err
		}
		if len(similar) > 0 {
			fmt.Fprintf(out, "Flagged %d possible duplicate(s):", len(similar))
			for _, s := range similar {
				fmt.Fprintf(out, " %s", s.NormalizedRecordID)
			}
			fmt.Fprintln(out)
		}
	}

	return nil
}

func newRecordListCmd() *cobra.Command {
	var (
		configPath string
		state      string
		groupID    uint
		unassigned bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records",
		Long:  "Lists records with optional filters. Output is formatted as a table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordList(cmd, configPath, state, groupID, unassigned)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "iris.yaml", "path to IRIS config file")
	cmd.Flags().StringVar(&state, "state", "", "filter by state (name or code)")
	cmd.Flags().UintVar(&groupID, "group", 0, "filter by responsible group ID")
	cmd.Flags().BoolVar(&unassigned, "unassigned", false, "only records without a responsible group")
	return cmd
}

func runRecordList(cmd *cobra.Command, configPath, state string, groupID uint, unassigned bool) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	query := gormDB.Model(&models.RecordCard{}).Where("enabled = ?", true)
	if state != "" {
		code, err := parseState(state)
		if err != nil {
			return err
		}
		query = query.Where("record_state = ?", code)
	}
	if groupID != 0 {
		query = query.Where("responsible_profile_id = ?", groupID)
	}
	if unassigned {
		query = query.Where("responsible_profile_id IS NULL")
	}

	var records []models.RecordCard
	if err := query.Order("created_at DESC").Limit(100).Find(&records).Error; err != nil {
		return fmt.Errorf("list records: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No records found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REF\tSTATE\tGROUP\tCLAIMS\tLIMIT\tDESCRIPTION")
	for _, r := range records {
		group := "-"
		if r.ResponsibleProfileID != nil {
			group = strconv.FormatUint(uint64(*r.ResponsibleProfileID), 10)
		}
		limit := "-"
		if r.AnsLimitDate != nil {
			limit = r.AnsLimitDate.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.NormalizedRecordID, models.StateName(r.RecordState), group,
			r.ClaimsNumber, limit, truncate(r.Description, 40))
	}
	w.Flush()
	return nil
}

func newRecordShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <ref>",
		Short: "Show record details",
		Long:  "Displays full details of a record including state history, comments, and flagged duplicates.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordShow(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "iris.yaml", "path to IRIS config file")
	return cmd
}

func runRecordShow(cmd *cobra.Command, configPath, ref string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	record, err := getRecord(gormDB, ref)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ref:          %s\n", record.NormalizedRecordID)
	fmt.Fprintf(out, "State:        %s\n", models.StateName(record.RecordState))
	fmt.Fprintf(out, "Theme:        %d\n", record.ElementDetailID)
	if record.ResponsibleProfileID != nil {
		fmt.Fprintf(out, "Group:        %d\n", *record.ResponsibleProfileID)
	}
	fmt.Fprintf(out, "Channel:      %s\n", record.ResponseChannel)
	if record.InputChannel != "" {
		fmt.Fprintf(out, "Input:        %s\n", record.InputChannel)
	}
	if record.ClaimedFromID != nil {
		fmt.Fprintf(out, "Claim of:     %s\n", *record.ClaimedFromID)
	}
	if record.ClaimsNumber > 0 {
		fmt.Fprintf(out, "Claims:       %d\n", record.ClaimsNumber)
	}
	if record.Alarm || record.CitizenAlarm || record.CitizenWebAlarm {
		fmt.Fprintf(out, "Alarms:       alarm=%t citizen=%t web=%t\n",
			record.Alarm, record.CitizenAlarm, record.CitizenWebAlarm)
	}
	fmt.Fprintf(out, "Created:      %s\n", record.CreatedAt.Format("2006-01-02 15:04:05"))
	if record.AnsLimitDate != nil {
		fmt.Fprintf(out, "Answer by:    %s\n", record.AnsLimitDate.Format("2006-01-02 15:04:05"))
	}
	if record.ClosingDate != nil {
		fmt.Fprintf(out, "Closed:       %s\n", record.ClosingDate.Format("2006-01-02 15:04:05"))
		if record.CloseDepartment != "" {
			fmt.Fprintf(out, "Closed by:    %s\n", record.CloseDepartment)
		}
	}

	if record.Description != "" {
		fmt.Fprintf(out, "\nDescription:\n%s\n", record.Description)
	}

	var history []models.RecordCardStateHistory
	if err := gormDB.Where("record_card_id = ?", record.ID).
		Order("created_at ASC").Find(&history).Error; err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if len(history) > 0 {
		fmt.Fprintln(out, "\nHistory:")
		for _, h := range history {
			auto := ""
			if h.Automatic {
				auto = " (automatic)"
			}
			fmt.Fprintf(out, "  [%s] %s -> %s by %s%s\n",
				h.CreatedAt.Format("2006-01-02 15:04"),
				models.StateName(h.PreviousState), models.StateName(h.NextState),
				h.UserID, auto)
		}
	}

	var comments []models.Comment
	if err := gormDB.Where("record_card_id = ?", record.ID).
		Order("created_at ASC").Find(&comments).Error; err != nil {
		return fmt.Errorf("load comments: %w", err)
	}
	if len(comments) > 0 {
		fmt.Fprintln(out, "\nComments:")
		for _, c := range comments {
			fmt.Fprintf(out, "  [%s] %s: %s\n",
				c.CreatedAt.Format("2006-01-02 15:04"), c.UserID, truncate(c.Text, 80))
		}
	}

	var similar []models.PossibleSimilarRecord
	if err := gormDB.Where("record_card_id = ?", record.ID).
		Find(&similar).Error; err != nil {
		return fmt.Errorf("load similar records: %w", err)
	}
	if len(similar) > 0 {
		fmt.Fprintln(out, "\nPossible duplicates:")
		for _, s := range similar {
			var other models.RecordCard
			if err := gormDB.First(&other, "id = ?", s.SimilarID).Error; err == nil {
				fmt.Fprintf(out, "  %s (%s)\n", other.NormalizedRecordID,
					models.StateName(other.RecordState))
			}
		}
	}

	return nil
}

func newRecordChangeStateCmd() *cobra.Command {
	var (
		configPath string
		toState    string
		userID     string
		closeDept  string
		derivate   bool
	)

	cmd := &cobra.Command{
		Use:   "change-state <ref>",
		Short: "Move a record to a new state",
		Long: `Moves a record through its lifecycle. Transitions are validated
against the state catalog; illegal moves are rejected. With --derivate,
the routing rules re-resolve the responsible group for the new state
before the change is committed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordChangeState(cmd, configPath, args[0], toState, userID, closeDept, derivate)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "iris.yaml", "path to IRIS config file")
	cmd.Flags().StringVar(&toState, "to", "", "target state, name or code (required)")
	cmd.Flags().StringVar(&userID, "user", "cli", "acting user ID")
	cmd.Flags().StringVar(&closeDept, "close-department", "", "department stamped when closing")
	cmd.Flags().BoolVar(&derivate, "derivate", false, "re-run derivation for the new state")
	cmd.MarkFlagRequired("to")
	return cmd
}

func runRecordChangeState(cmd *cobra.Command, configPath, ref, toState, userID, closeDept string, derivate bool) error {
	nextState, err := parseState(toState)
	if err != nil {
		return err
	}

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	record, err := getRecord(gormDB, ref)
	if err != nil {
		return err
	}
	prevState := record.RecordState

	announcer, err := buildAnnouncer(cfg, gormDB)
	if err != nil {
		return err
	}

	changeOpts := lifecycle.ChangeOpts{
		CloseDepartment:   closeDept,
		PerformDerivation: derivate,
		Catalog:           lifecycle.DefaultCatalog(),
		Notifier:          announcer,
	}

	out := cmd.OutOrStdout()
	if nextState == models.StatePendingAnswer {
		_, autoClosed, err := lifecycle.PendingAnswerChangeState(gormDB, record, userID, changeOpts)
		if err != nil {
			return err
		}
		if autoClosed {
			fmt.Fprintf(out, "Record %s has no response channel; closed automatically\n", ref)
			return nil
		}
	} else {
		if _, err := lifecycle.ChangeState(gormDB, record, nextState, userID, changeOpts); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "Record %s: %s -> %s\n", ref,
		models.StateName(prevState), models.StateName(nextState))
	if derivate && record.ResponsibleProfileID != nil {
		fmt.Fprintf(out, "Responsible group: %d\n", *record.ResponsibleProfileID)
	}
	return nil
}

func newRecordAutovalidateCmd() *cobra.Command {
	var (
		configPath string
		comment    string
		userID     string
	)

	cmd := &cobra.Command{
		Use:   "autovalidate <ref>",
		Short: "Validate and close a record in one step",
		Long: `Closes a pending record whose theme enables autovalidation. The theme
must allow it and the record must still be awaiting validation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordAutovalidate(cmd, configPath, args[0], comment, userID)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "iris.yaml", "path to IRIS config file")
	cmd.Flags().StringVar(&comment, "comment", "", "validation comment attached on close")
	cmd.Flags().StringVar(&userID, "user", "cli", "acting user ID")
	return cmd
}

func runRecordAutovalidate(cmd *cobra.Command, configPath, ref, comment, userID string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	record, err := getRecord(gormDB, ref)
	if err != nil {
		return err
	}

	result, err := lifecycle.AutovalidateRecord(gormDB, record, comment, userID, lifecycle.AutovalidateOpts{
		Catalog: lifecycle.DefaultCatalog(),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !result.Validated {
		fmt.Fprintf(out, "Record %s rejected by validator: %s\n", ref, result.Message)
		return nil
	}
	fmt.Fprintf(out, "Record %s validated and closed\n", ref)
	return nil
}

func newRecordDerivateCmd() *cobra.Command {
	var (
		configPath string
		check      bool
		userID     string
	)

	cmd := &cobra.Command{
		Use:   "derivate <ref>",
		Short: "Resolve and apply the responsible group for a record",
		Long: `Runs the derivation rules (direct, district, polygon) for a record
and reassigns it to the matched group. With --check, reports the match
without persisting anything.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordDerivate(cmd, configPath, args[0], userID, check)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "iris.yaml", "path to IRIS config file")
	cmd.Flags().BoolVar(&check, "check", false, "report the match without applying it")
	cmd.Flags().StringVar(&userID, "user", "cli", "acting user ID")
	return cmd
}

func runRecordDerivate(cmd *cobra.Command, configPath, ref, userID string, check bool) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	record, err := getRecord(gormDB, ref)
	if err != nil {
		return err
	}

	announcer, err := buildAnnouncer(cfg, gormDB)
	if err != nil {
		return err
	}

	result, err := derivation.Derivate(gormDB, record, userID, derivation.Options{
		CheckOnly: check,
		Notifier:  announcer,
	})
	if err != nil {
		return err
	}
	result.Notify()

	out := cmd.OutOrStdout()
	switch {
	case !result.Found:
		fmt.Fprintf(out, "No derivation rule matches %s\n", ref)
	case result.Sticky:
		fmt.Fprintf(out, "Record %s was manually reassigned; derivation to group %d blocked\n",
			ref, result.GroupID)
	case check:
		fmt.Fprintf(out, "Record %s would be routed to group %d (check only)\n", ref, result.GroupID)
	case !result.Changed:
		fmt.Fprintf(out, "Record %s already belongs to group %d\n", ref, result.GroupID)
	default:
		fmt.Fprintf(out, "Record %s routed to group %d\n", ref, result.GroupID)
	}
	return nil
}

func newRecordReassignCmd() *cobra.Command {
	var (
		configPath string
		groupID    uint
		comment    string
		userID     string
	)

	cmd := &cobra.Command{
		Use:   "reassign <ref>",
		Short: "Manually hand a record to another group",
		Long: `Reassigns a record to the given group by coordinator decision. The
record is marked as manually reassigned, so later derivation leaves it
alone unless multiderivation is allowed. Validated records need a theme
that permits post-validation reassignment.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordReassign(cmd, configPath, args[0], groupID, userID, comment)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "iris.yaml", "path to IRIS config file")
	cmd.Flags().UintVar(&groupID, "group", 0, "target group ID")
	cmd.Flags().StringVar(&comment, "comment", "", "reason for the reassignment")
	cmd.Flags().StringVar(&userID, "user", "cli", "acting user ID")
	cmd.MarkFlagRequired("group")
	cmd.MarkFlagRequired("comment")
	return cmd
}

func runRecordReassign(cmd *cobra.Command, configPath, ref string, groupID uint, userID, comment string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	record, err := getRecord(gormDB, ref)
	if err != nil {
		return err
	}

	audit, err := derivation.Reassign(gormDB, record, groupID, userID, comment)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if audit.PreviousGroup != nil {
		fmt.Fprintf(out, "Record %s reassigned from group %d to group %d\n",
			ref, *audit.PreviousGroup, audit.NextGroup)
	} else {
		fmt.Fprintf(out, "Record %s assigned to group %d\n", ref, audit.NextGroup)
	}
	return nil
}

func newRecordSimilarCmd() *cobra.Command {
	var (
		configPath string
		groupID    uint
	)

	cmd := &cobra.Command{
		Use:   "similar <ref>",
		Short: "Detect and flag possible duplicate records",
		Long: `Scans for records on the same theme close in time and space to this
one and flags them as possible duplicates, in both directions.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordSimilar(cmd, configPath, args[0], groupID)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "iris.yaml", "path to IRIS config file")
	cmd.Flags().UintVar(&groupID, "group", 0, "acting group ID (defaults to the record's responsible group)")
	return cmd
}

func runRecordSimilar(cmd *cobra.Command, configPath, ref string, groupID uint) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	record, err := getRecord(gormDB, ref)
	if err != nil {
		return err
	}

	if groupID == 0 {
		if record.ResponsibleProfileID == nil {
			return fmt.Errorf("record %s has no responsible group; pass --group", ref)
		}
		groupID = *record.ResponsibleProfileID
	}

	similar, err := similarity.SetSimilarRecords(gormDB, record, groupID,
		&groups.Permissions{DB: gormDB})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(similar) == 0 {
		fmt.Fprintf(out, "No possible duplicates for %s\n", ref)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REF\tSTATE\tCREATED\tDESCRIPTION")
	for _, s := range similar {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			s.NormalizedRecordID, models.StateName(s.RecordState),
			s.CreatedAt.Format("2006-01-02"), truncate(s.Description, 40))
	}
	w.Flush()
	return nil
}
