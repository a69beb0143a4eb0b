package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"uwbnode.dev/board"
	"uwbnode.dev/driver/dw1000"
	"uwbnode.dev/ranging"
	"uwbnode.dev/telemetry"
)

func newNodeCmd(o *options, role ranging.Role) *cobra.Command {
	return &cobra.Command{
		Use:   role.String(),
		Short: fmt.Sprintf("Run as %s on the configured board", role),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(cmd, o, role)
		},
	}
}

func runNode(cmd *cobra.Command, o *options, role ranging.Role) error {
	cfg, log, err := o.load(role.String())
	if err != nil {
		return err
	}
	rc, err := cfg.Ranging()
	if err != nil {
		return err
	}
	if err := realtime(); err != nil {
		log.Warnf(logTag, "realtime scheduling: %v", err)
	}
	port, err := board.Open(board.Pins{
		SPI:   cfg.Board.SPI,
		CS:    cfg.Board.CS,
		Reset: cfg.Board.Reset,
		IRQ:   cfg.Board.IRQ,
	}, log)
	if err != nil {
		return err
	}
	defer port.Close()

	out, err := openSinks(cmd.Context(), cfg.Telemetry, rc.Address.String(), log)
	if err != nil {
		return err
	}
	defer out.Close()

	eng := ranging.New(dw1000.New(port, log), port, rc, log)
	eng.SetListener(telemetry.NewRecorder(uint16(rc.Address), nil, log, out.sinks...))
	if err := eng.Start(); err != nil {
		return err
	}
	log.Infof(logTag, "%s %v (EUI %v) running", role, eng.Address(), eng.EUI())
	loop(cmd.Context(), eng, cfg.Tick)
	log.Infof(logTag, "stopped")
	return nil
}
