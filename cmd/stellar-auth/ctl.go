package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/stellar-auth/auth"
	"github.com/signalsfoundry/stellar-auth/internal/command"
)

const (
	addrKey      = "addr"
	timeoutKey   = "timeout"
	commandIDKey = "command-id"
	startKey     = "start"
	endKey       = "end"
	yawKey       = "yaw"

	defaultCommandTimeout = 10 * time.Second
)

func newCtlCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "ctl",
		Short: "Send ground commands to a running server",
	}
	pf := c.PersistentFlags()
	pf.String(addrKey, "localhost:50051", "Command service address")
	pf.Duration(timeoutKey, defaultCommandTimeout, "Per-command deadline")
	pf.String(commandIDKey, "", "Command ID recorded in server logs and traces")

	schedule := &cobra.Command{
		Use:   "schedule",
		Short: "Upload a mission window",
		Args:  cobra.NoArgs,
		RunE: withClient(func(ctx context.Context, c *cobra.Command, client *command.Client, _ []string) error {
			flags := c.Flags()
			start, _ := flags.GetInt64(startKey)
			end, _ := flags.GetInt64(endKey)
			yaw, _ := flags.GetFloat32(yawKey)
			return client.LoadTransitSchedule(ctx, auth.MissionWindow{Start: start, End: end, TargetYaw: yaw})
		}),
	}
	schedule.Flags().Int64(startKey, 0, "Window start, seconds")
	schedule.Flags().Int64(endKey, 0, "Window end, seconds")
	schedule.Flags().Float32(yawKey, 0, "Target yaw, degrees")
	_ = schedule.MarkFlagRequired(startKey)
	_ = schedule.MarkFlagRequired(endKey)

	c.AddCommand(
		schedule,
		&cobra.Command{
			Use:   "bypass KEY",
			Short: "Request an emergency bypass (KEY accepts 0x prefix)",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(func(ctx context.Context, _ *cobra.Command, client *command.Client, args []string) error {
				key, err := strconv.ParseUint(args[0], 0, 32)
				if err != nil {
					return fmt.Errorf("bypass key: %w", err)
				}
				return client.AuthStart(ctx, uint32(key))
			}),
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Force the engine back to LOCKED and clear the fault latch",
			Args:  cobra.NoArgs,
			RunE: withClient(func(ctx context.Context, _ *cobra.Command, client *command.Client, _ []string) error {
				return client.AuthReset(ctx)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the engine status",
			Args:  cobra.NoArgs,
			RunE: withClient(func(ctx context.Context, c *cobra.Command, client *command.Client, _ []string) error {
				st, err := client.GetStatus(ctx)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(c.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}),
		},
		&cobra.Command{
			Use:   "attitude DEGREES",
			Short: "Push a yaw sample",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(func(ctx context.Context, _ *cobra.Command, client *command.Client, args []string) error {
				v, err := strconv.ParseFloat(args[0], 32)
				if err != nil {
					return err
				}
				return client.PushAttitude(ctx, float32(v))
			}),
		},
		&cobra.Command{
			Use:   "light LEVEL",
			Short: "Push a light sensor sample",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(func(ctx context.Context, _ *cobra.Command, client *command.Client, args []string) error {
				v, err := strconv.ParseFloat(args[0], 32)
				if err != nil {
					return err
				}
				return client.PushLight(ctx, float32(v))
			}),
		},
	)
	return c
}

type clientFunc func(ctx context.Context, c *cobra.Command, client *command.Client, args []string) error

// withClient dials the server named by the persistent flags and runs fn with
// a bounded, command-ID tagged context.
func withClient(fn clientFunc) func(*cobra.Command, []string) error {
	return func(c *cobra.Command, args []string) error {
		flags := c.Flags()
		addr, _ := flags.GetString(addrKey)
		timeout, _ := flags.GetDuration(timeoutKey)
		id, _ := flags.GetString(commandIDKey)

		client, closeConn, err := dial(addr)
		if err != nil {
			return err
		}
		defer closeConn()

		ctx, cancel := commandContext(c.Context(), timeout, id)
		defer cancel()
		return fn(ctx, c, client, args)
	}
}

func dial(addr string) (*command.Client, func(), error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return command.NewClient(conn), func() { _ = conn.Close() }, nil
}

func commandContext(parent context.Context, timeout time.Duration, id string) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if id != "" {
		parent = command.OutgoingCommandID(parent, id)
	}
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return context.WithTimeout(parent, timeout)
}
