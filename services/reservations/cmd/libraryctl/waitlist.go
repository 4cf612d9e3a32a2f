package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/diagnosis/library-reservations/services/reservations/internal/domain"
	"github.com/diagnosis/library-reservations/services/reservations/internal/rules"
)

func newWaitlistCmd(opts *options) *cobra.Command {
	var (
		position int
		avgDays  int
	)

	cmd := &cobra.Command{
		Use:   "waitlist",
		Short: "Waitlist helpers",
	}

	estimate := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate when a waitlist position gets the book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := opts.validator()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("avg-days") {
				avgDays = v.Policy().AverageLoanDays
			}
			est, err := v.EstimateWaitlist(position, avgDays)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "position %d: about %d days, around %s\n",
				est.Position, est.EstimatedDays, est.EstimatedDate)
			return nil
		},
	}
	estimate.Flags().IntVar(&position, "position", 1, "1-based waitlist position")
	estimate.Flags().IntVar(&avgDays, "avg-days", rules.DefaultAverageLoanDays, "average loan length in days")

	cmd.AddCommand(estimate)
	return cmd
}

func newRecurrenceCmd() *cobra.Command {
	var pickup, ret, pattern, end string

	cmd := &cobra.Command{
		Use:   "recurrence",
		Short: "Recurring reservation helpers",
	}

	expand := &cobra.Command{
		Use:   "expand",
		Short: "List the loans a recurring reservation would create",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := rules.ParseDate(pickup)
			if err != nil {
				return fmt.Errorf("--pickup: %w", err)
			}
			r, err := rules.ParseDate(ret)
			if err != nil {
				return fmt.Errorf("--return: %w", err)
			}
			occ, err := rules.ExpandRecurrence(p, r, domain.Recurrence{
				Pattern: domain.RecurrencePattern(pattern),
				EndDate: end,
			})
			if err != nil {
				return err
			}
			for i, o := range occ {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", i+1, rules.FormatDate(o.PickupDate), rules.FormatDate(o.ReturnDate))
			}
			return nil
		},
	}
	expand.Flags().StringVar(&pickup, "pickup", "", "first pickup date")
	expand.Flags().StringVar(&ret, "return", "", "first return date")
	expand.Flags().StringVar(&pattern, "pattern", string(domain.RecurWeekly), "weekly, biweekly or monthly")
	expand.Flags().StringVar(&end, "end", "", "recurrence end date")
	for _, f := range []string{"pickup", "return", "end"} {
		_ = expand.MarkFlagRequired(f)
	}

	cmd.AddCommand(expand)
	return cmd
}
