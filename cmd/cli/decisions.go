package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/stayrate/pricing-service/internal/database"
	"github.com/stayrate/pricing-service/internal/ledger"
)

// decisionsCmd represents the decisions command group
var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Inspect the price decision ledger",
}

var decisionsAuditCmd = &cobra.Command{
	Use:   "audit <reference>",
	Short: "Print the full audit trail for a decision",
	Example: `  pricing-service decisions audit PD_0CL2Kwa8kJ2mN4pQ6r`,
	Args: cobra.ExactArgs(1),
	RunE: runDecisionsAudit,
}

var decisionsExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Run one decision expiry sweep immediately",
	RunE:  runDecisionsExpire,
}

func init() {
	rootCmd.AddCommand(decisionsCmd)
	decisionsCmd.AddCommand(decisionsAuditCmd, decisionsExpireCmd)
}

func runDecisionsAudit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	led := ledger.New(database.Pool(), logger)

	trail, err := led.AuditTrail(ctx, args[0])
	if err != nil {
		return fmt.Errorf("fetch audit trail: %w", err)
	}

	d := trail.Decision
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Reference\t%s\n", d.Reference)
	fmt.Fprintf(w, "Version\t%d\n", d.Version)
	fmt.Fprintf(w, "Status\t%s\n", d.Status)
	fmt.Fprintf(w, "Venue\t%s (%s)\n", d.VenueID, d.VenueType)
	fmt.Fprintf(w, "Booking\t%s, party of %d\n", d.BookingTime.Format(time.RFC3339), d.PartySize)
	fmt.Fprintf(w, "Total\t%s %s\n", d.TotalPrice.String(), d.Currency)
	fmt.Fprintf(w, "Source\t%s\n", d.Source)
	if d.Confidence != nil {
		fmt.Fprintf(w, "Confidence\t%.2f\n", *d.Confidence)
	}
	fmt.Fprintf(w, "Valid until\t%s\n", d.ValidUntil.Format(time.RFC3339))
	if err := w.Flush(); err != nil {
		return err
	}

	if len(d.Breakdown) > 0 {
		fmt.Println("\nAdjustments:")
		for category, amount := range d.Breakdown {
			fmt.Printf("  %-14s %s\n", category, amount.String())
		}
	}

	if len(trail.VersionHistory) > 0 {
		fmt.Println("\nVersion history:")
		for _, v := range trail.VersionHistory {
			fmt.Printf("  v%d %s %s %s (%s)\n",
				v.Version, v.Reference, v.TotalPrice.String(), v.Currency, v.Status)
		}
	}

	if len(trail.AuditEvents) > 0 {
		fmt.Println("\nAudit events:")
		for _, e := range trail.AuditEvents {
			fmt.Printf("  %s %-18s actor=%s\n",
				e.CreatedAt.Format(time.RFC3339), e.Action, e.Actor)
		}
	}

	if len(trail.RelatedDecisions) > 0 {
		fmt.Println("\nRelated decisions (same venue and booking time):")
		for _, r := range trail.RelatedDecisions {
			fmt.Printf("  %s %s %s (%s)\n",
				r.Reference, r.TotalPrice.String(), r.Currency, r.Status)
		}
	}

	return nil
}

func runDecisionsExpire(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	led := ledger.New(database.Pool(), logger)

	expired, err := led.ExpireLapsed(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("expiry sweep: %w", err)
	}

	for i := range expired {
		fmt.Printf("expired %s (valid until %s)\n",
			expired[i].Reference, expired[i].ValidUntil.Format(time.RFC3339))
	}
	fmt.Printf("%d decisions expired\n", len(expired))
	return nil
}
