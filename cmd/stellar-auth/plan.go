package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/signalsfoundry/stellar-auth/ephemeris"
)

const (
	leadKey      = "lead"
	spanKey      = "span"
	targetYawKey = "target-yaw"
	fromKey      = "from"
	uploadKey    = "upload"
)

func addWindowFlags(flags *pflag.FlagSet) {
	def := ephemeris.DefaultWindowOptions()
	flags.Duration(leadKey, def.Lead, "Open the planned window this long before the predicted ingress")
	flags.Duration(spanKey, def.Span, "Keep the planned window open this long after the predicted ingress")
	flags.Float32(targetYawKey, def.TargetYaw, "Target yaw of the planned window, degrees")
}

func parseWindowFlags(flags *pflag.FlagSet) (ephemeris.WindowOptions, error) {
	var opts ephemeris.WindowOptions
	var err error
	if opts.Lead, err = flags.GetDuration(leadKey); err != nil {
		return opts, err
	}
	if opts.Span, err = flags.GetDuration(spanKey); err != nil {
		return opts, err
	}
	if opts.TargetYaw, err = flags.GetFloat32(targetYawKey); err != nil {
		return opts, err
	}
	return opts, nil
}

type planOutput struct {
	Satellite   string    `json:"satellite"`
	Name        string    `json:"name,omitempty"`
	Ingress     time.Time `json:"ingress"`
	WindowStart int64     `json:"window_start"`
	WindowEnd   int64     `json:"window_end"`
	TargetYaw   float32   `json:"target_yaw"`
	Uploaded    bool      `json:"uploaded"`
}

func newPlanCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "plan TLE_FILE",
		Short: "Predict the next shadow ingress and print the mission window around it",
		Args:  cobra.ExactArgs(1),
		RunE:  runPlan,
	}
	flags := c.Flags()
	flags.String(fromKey, "", "Search start, RFC 3339 (defaults to now)")
	flags.String(uploadKey, "", "Upload the window to the server at this address")
	addWindowFlags(flags)
	return c
}

func runPlan(c *cobra.Command, args []string) error {
	flags := c.Flags()
	opts, err := parseWindowFlags(flags)
	if err != nil {
		return err
	}
	from := time.Now()
	if raw, _ := flags.GetString(fromKey); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			return fmt.Errorf("--%s: %w", fromKey, err)
		}
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	tle, err := ephemeris.ReadTLE(f)
	if err != nil {
		return err
	}
	planner, err := ephemeris.NewPlanner(tle)
	if err != nil {
		return err
	}
	w, err := planner.PlanWindow(from, opts)
	if err != nil {
		return err
	}

	out := planOutput{
		Satellite:   tle.CatalogNumber(),
		Name:        tle.Name,
		Ingress:     time.Unix(w.Start, 0).Add(opts.Lead).UTC(),
		WindowStart: w.Start,
		WindowEnd:   w.End,
		TargetYaw:   w.TargetYaw,
	}

	if addr, _ := flags.GetString(uploadKey); addr != "" {
		client, closeConn, err := dial(addr)
		if err != nil {
			return err
		}
		defer closeConn()
		ctx, cancel := commandContext(c.Context(), defaultCommandTimeout, "")
		defer cancel()
		if err := client.LoadTransitSchedule(ctx, w); err != nil {
			return err
		}
		out.Uploaded = true
	}

	enc := json.NewEncoder(c.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
