package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/diagnosis/library-reservations/pkg/config"
	"github.com/diagnosis/library-reservations/services/reservations/internal/rules"
)

// errInvalid makes the process exit non-zero after the problems are printed.
var errInvalid = errors.New("request is invalid")

type options struct {
	policyFile string
	now        string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "libraryctl",
		Short:        "Library reservation tooling",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.policyFile, "policy", "", "YAML reservation policy file")
	root.PersistentFlags().StringVar(&opts.now, "now", "", "evaluate as of this time (RFC 3339 or YYYY-MM-DD)")

	root.AddCommand(
		newValidateCmd(opts),
		newWaitlistCmd(opts),
		newRecurrenceCmd(),
		newTokenCmd(),
		newReservationsCmd(),
	)
	return root
}

func (o *options) policy() (rules.Policy, error) {
	def := rules.DefaultPolicy()
	base := config.PolicyConfig{
		MinPickupDays:      def.MinPickupDays,
		MaxAdvanceDays:     def.MaxAdvanceDays,
		MaxReservationDays: def.MaxReservationDays,
		AverageLoanDays:    def.AverageLoanDays,
	}
	if o.policyFile != "" {
		p, err := config.LoadPolicyFile(o.policyFile, base)
		if err != nil {
			return rules.Policy{}, err
		}
		base = p
	}
	return rules.Policy{
		MinPickupDays:      base.MinPickupDays,
		MaxAdvanceDays:     base.MaxAdvanceDays,
		MaxReservationDays: base.MaxReservationDays,
		AverageLoanDays:    base.AverageLoanDays,
	}, nil
}

func (o *options) clock() (rules.Clock, error) {
	if o.now == "" {
		return time.Now, nil
	}
	t, err := rules.ParseDate(o.now)
	if err != nil {
		return nil, fmt.Errorf("--now: %w", err)
	}
	return func() time.Time { return t }, nil
}

func (o *options) validator() (*rules.Validator, error) {
	p, err := o.policy()
	if err != nil {
		return nil, err
	}
	clock, err := o.clock()
	if err != nil {
		return nil, err
	}
	return rules.NewValidator(p, clock), nil
}
