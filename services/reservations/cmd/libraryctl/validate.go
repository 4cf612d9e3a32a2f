package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/diagnosis/library-reservations/services/reservations/internal/domain"
	"github.com/diagnosis/library-reservations/services/reservations/internal/rules"
)

func newValidateCmd(opts *options) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a reservation request body without sending it",
	}
	cmd.PersistentFlags().StringVarP(&file, "file", "f", "-", "JSON request body, - for stdin")

	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Validate a create reservation body",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var req domain.CreateReservationReq
			if err := readJSON(cmd, file, &req); err != nil {
				return err
			}
			v, err := opts.validator()
			if err != nil {
				return err
			}
			return report(cmd.OutOrStdout(), v.ValidateCreate(req))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "update",
		Short: "Validate an update reservation body",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var patch domain.ReservationPatch
			if err := readJSON(cmd, file, &patch); err != nil {
				return err
			}
			v, err := opts.validator()
			if err != nil {
				return err
			}
			return report(cmd.OutOrStdout(), v.ValidateUpdate(patch))
		},
	})

	return cmd
}

func readJSON(cmd *cobra.Command, file string, v interface{}) error {
	var r io.Reader = cmd.InOrStdin()
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("failed to parse request body: %w", err)
	}
	return nil
}

func report(w io.Writer, errs []rules.ValidationError) error {
	if len(errs) == 0 {
		fmt.Fprintln(w, "ok")
		return nil
	}
	for _, e := range errs {
		fmt.Fprintln(w, e.String())
	}
	return errInvalid
}
