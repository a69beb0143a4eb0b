package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"uwbnode.dev/driver/dw1000"
	"uwbnode.dev/mac"
	"uwbnode.dev/ranging"
	"uwbnode.dev/telemetry"
)

const (
	firstAnchor = mac.ShortAddr(0x7D00)
	firstTag    = mac.ShortAddr(0x0101)
)

type simFlags struct {
	anchors  int
	tags     int
	spacing  float64
	duration time.Duration
	realtime bool
	seed     uint64
}

func newSimCmd(o *options) *cobra.Command {
	var f simFlags
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Range between simulated anchors and tags",
		Long: `Run anchors and tags on simulated transceivers sharing one medium.

Anchors stand on a line, spacing meters apart. Tags are spread along a
parallel line two meters away. Every range record is printed; the
configured telemetry sinks receive them too.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSim(cmd, o, f)
		},
	}
	fl := cmd.Flags()
	fl.IntVar(&f.anchors, "anchors", 2, "Number of anchors")
	fl.IntVar(&f.tags, "tags", 1, "Number of tags")
	fl.Float64Var(&f.spacing, "spacing", 10, "Distance between anchors in meters")
	fl.DurationVar(&f.duration, "duration", 10*time.Second, "Simulated time")
	fl.BoolVar(&f.realtime, "realtime", false, "Pace the simulation by the wall clock")
	fl.Uint64Var(&f.seed, "seed", 1, "Seed of the simulated random sources")
	return cmd
}

type simNode struct {
	eng *ranging.Engine
	rec *telemetry.Recorder
}

func runSim(cmd *cobra.Command, o *options, f simFlags) error {
	if f.anchors < 1 || f.tags < 1 {
		return errors.New("sim: need at least one anchor and one tag")
	}
	cfg, log, err := o.load("")
	if err != nil {
		return err
	}
	base, err := cfg.Ranging()
	if err != nil {
		return err
	}
	out, err := openSinks(cmd.Context(), cfg.Telemetry, "sim", log)
	if err != nil {
		return err
	}
	defer out.Close()
	stdout := cmd.OutOrStdout()
	printer := telemetry.SinkFunc(func(r telemetry.Record) error {
		_, err := fmt.Fprintln(stdout, r)
		return err
	})
	sinks := append([]telemetry.Sink{printer}, out.sinks...)

	air := dw1000.NewAir(f.seed)
	start := time.Now()
	now := func() time.Time { return start.Add(air.Now()) }
	var nodes []simNode
	add := func(role ranging.Role, addr mac.ShortAddr, x, y float64) error {
		sim := air.NewSimulator(x, y, 0)
		rc := base
		rc.Role = role
		rc.Address = addr
		rc.EUI = mac.LongAddr{}
		eng := ranging.New(dw1000.New(sim, log), sim, rc, log)
		rec := telemetry.NewRecorder(uint16(addr), now, log, sinks...)
		eng.SetListener(rec)
		if err := eng.Start(); err != nil {
			return fmt.Errorf("sim: %v %v: %w", role, addr, err)
		}
		nodes = append(nodes, simNode{eng: eng, rec: rec})
		return nil
	}
	for i := range f.anchors {
		if err := add(ranging.Anchor, firstAnchor+mac.ShortAddr(i), float64(i)*f.spacing, 0); err != nil {
			return err
		}
	}
	width := float64(f.anchors-1) * f.spacing
	for i := range f.tags {
		x := width * float64(i+1) / float64(f.tags+1)
		if err := add(ranging.Tag, firstTag+mac.ShortAddr(i), x, 2); err != nil {
			return err
		}
	}

	var pace <-chan time.Time
	if f.realtime {
		t := time.NewTicker(time.Millisecond)
		defer t.Stop()
		pace = t.C
	}
	ctx := cmd.Context()
	for range f.duration / time.Millisecond {
		if ctx.Err() != nil {
			break
		}
		air.Advance(time.Millisecond)
		for _, n := range nodes {
			n.eng.Tick()
		}
		if pace != nil {
			<-pace
		}
	}
	summarize(stdout, nodes)
	return nil
}

func summarize(w io.Writer, nodes []simNode) {
	for _, n := range nodes {
		ranges, timeouts := n.rec.Stats()
		fmt.Fprintf(w, "%s %v: %d ranges, %d poll-ack timeouts, %d devices\n",
			n.eng.Role(), n.eng.Address(), ranges, timeouts, n.eng.Directory().Len())
	}
}
