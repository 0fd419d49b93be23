package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"lighttunnel-go/services/instr"
	"lighttunnel-go/services/link"
	"lighttunnel-go/services/monitor"
	"lighttunnel-go/services/sensor"

	"github.com/spf13/cobra"
)

func (a *app) serveCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Execute instructions from the host link until it closes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("metrics-addr") {
				a.cfg.Metrics.Addr = metricsAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if a.cfg.Metrics.Addr != "" {
				mon := monitor.New(a.log)
				a.rec = mon
				go func() {
					if err := mon.Serve(ctx, a.cfg.Metrics.Addr); err != nil {
						a.log.WithError(err).Error("metrics server")
					}
				}()
			}

			svc, closer, err := a.openService()
			if err != nil {
				return err
			}
			defer closer.Close()

			conn, desc, err := link.Open(a.linkOptions())
			if err != nil {
				return err
			}
			defer conn.Close()
			a.log.WithField("link", desc).Info("serving")

			go func() {
				<-ctx.Done()
				conn.Close()
			}()

			err = svc.Serve(ctx, conn, sensor.NewEncoder(a.cfg.Link.Format, conn))
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9102)")
	return cmd
}

func (a *app) execCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <instruction...>",
		Short: "Execute one instruction and print the replies",
		Example: `  lighttunnel exec SET,chan_list,3
  lighttunnel exec MSR lux 10 100`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closer, err := a.openService()
			if err != nil {
				return err
			}
			defer closer.Close()
			in := instr.Decode(strings.Join(args, " "))
			return svc.Execute(cmd.Context(), in, sensor.NewEncoder(a.cfg.Link.Format, cmd.OutOrStdout()))
		},
	}
}

func (a *app) decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <text...>",
		Short: "Decode an instruction without executing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := instr.Decode(strings.Join(args, " "))
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "kind:   %s\n", in.Kind)
			if !in.Valid() {
				fmt.Fprintf(out, "reason: %s\n", in.Reason)
				return fmt.Errorf("malformed instruction %q", in.Raw)
			}
			fmt.Fprintf(out, "target: %s\n", in.Target)
			fmt.Fprintf(out, "p1:     %g\n", in.P1)
			fmt.Fprintf(out, "p2:     %g\n", in.P2)
			fmt.Fprintf(out, "params: %d\n", in.Params)
			fmt.Fprintf(out, "wire:   %s\n", in)
			return nil
		},
	}
}

func (a *app) identCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ident",
		Short: "Read the part ID and command status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dev, closer, err := a.openDevice()
			if err != nil {
				return err
			}
			defer closer.Close()

			id, err := dev.PartID()
			if err != nil {
				return err
			}
			st, err := dev.Status()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "address: 0x%02X\n", dev.Address())
			fmt.Fprintf(out, "part_id: 0x%02X\n", id)
			fmt.Fprintf(out, "counter: %d\n", st.Counter)
			fmt.Fprintf(out, "error:   %t\n", st.Err)
			return nil
		},
	}
}

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a protocol file, stopping at the first failure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			prog, err := instr.Load(f, a.cfg.TargetNames())
			if err != nil {
				return err
			}
			svc, closer, err := a.openService()
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a.log.WithField("instructions", len(prog)).Info("running protocol")
			return svc.Run(ctx, prog, sensor.NewEncoder(a.cfg.Link.Format, cmd.OutOrStdout()))
		},
	}
}
