package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/autom8ter/pathfinder"
	"github.com/autom8ter/pathfinder/auth"
	"github.com/autom8ter/pathfinder/config"
	"github.com/autom8ter/pathfinder/graph"
	"github.com/autom8ter/pathfinder/server"
)

type routeFlags struct {
	target     string
	key        string
	configPath string
	timeout    time.Duration
}

func newRouteCmd() *cobra.Command {
	flags := &routeFlags{}
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Query and update a running pathfinder",
	}
	cmd.PersistentFlags().StringVar(&flags.target, "target", "localhost:9090", "gRPC address of the pathfinder")
	cmd.PersistentFlags().StringVar(&flags.key, "key", os.Getenv("PATHFINDER_KEY"), "hex private key used to sign mutations (env PATHFINDER_KEY)")
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file whose chain names label routes")
	cmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", 10*time.Second, "per call timeout")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add FROM TO COST",
			Short: "Set the cost of the edge FROM -> TO (admin only)",
			Args:  cobra.ExactArgs(3),
			RunE: flags.run(func(ctx context.Context, c *session, args []string) error {
				from, to, err := parsePair(args)
				if err != nil {
					return err
				}
				cost, err := graph.ParseCost(args[2])
				if err != nil {
					return err
				}
				edge, err := c.client.AddRoute(ctx, from, to, cost)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "added %s -> %s cost %s\n", c.name(edge.From), c.name(edge.To), edge.Cost)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "find FROM TO",
			Short: "Greedy route from FROM towards TO",
			Args:  cobra.ExactArgs(2),
			RunE: flags.run(func(ctx context.Context, c *session, args []string) error {
				from, to, err := parsePair(args)
				if err != nil {
					return err
				}
				route, err := c.client.FindRoute(ctx, from, to)
				if err != nil {
					return err
				}
				fmt.Fprintln(c.out, route.Format(c.name))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "cost FROM TO",
			Short: "Cost of the edge FROM -> TO",
			Args:  cobra.ExactArgs(2),
			RunE: flags.run(func(ctx context.Context, c *session, args []string) error {
				from, to, err := parsePair(args)
				if err != nil {
					return err
				}
				cost, found, err := c.client.GetEdgeCost(ctx, from, to)
				if err != nil {
					return err
				}
				if !found {
					fmt.Fprintf(c.out, "%s (no edge)\n", cost)
					return nil
				}
				fmt.Fprintln(c.out, cost)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "quote FROM TO",
			Short: "Greedy route with its total cost",
			Args:  cobra.ExactArgs(2),
			RunE: flags.run(func(ctx context.Context, c *session, args []string) error {
				from, to, err := parsePair(args)
				if err != nil {
					return err
				}
				quote, err := c.client.QuoteRoute(ctx, from, to)
				if err != nil {
					return err
				}
				c.printQuote(quote)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "cheapest FROM TO",
			Short: "Route with the smallest total cost",
			Args:  cobra.ExactArgs(2),
			RunE: flags.run(func(ctx context.Context, c *session, args []string) error {
				from, to, err := parsePair(args)
				if err != nil {
					return err
				}
				quote, err := c.client.CheapestRoute(ctx, from, to)
				if err != nil {
					return err
				}
				c.printQuote(quote)
				return nil
			}),
		},
		newWatchCmd(flags),
	)
	return cmd
}

func newWatchCmd(flags *routeFlags) *cobra.Command {
	var node int64
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print route events as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.session(cmd)
			if err != nil {
				return err
			}
			defer c.client.Close()
			req := &server.WatchRequest{}
			if node >= 0 {
				n := graph.Node(node)
				req.Node = &n
			}
			enc := json.NewEncoder(c.out)
			return c.client.WatchRoutes(cmd.Context(), req, func(evt pathfinder.RouteAdded) bool {
				return enc.Encode(evt) == nil
			})
		},
	}
	cmd.Flags().Int64Var(&node, "node", -1, "only print edges touching this node")
	return cmd
}

type session struct {
	client *server.Client
	cfg    *config.Config
	out    io.Writer
}

func (s *session) name(n graph.Node) string {
	return s.cfg.ChainName(n)
}

func (s *session) printQuote(q pathfinder.Quote) {
	fmt.Fprintln(s.out, q.Route.Format(s.name))
	fmt.Fprintf(s.out, "total cost: %s\n", q.TotalCost)
	if !q.Reached {
		fmt.Fprintln(s.out, "destination not reached")
	}
}

func (f *routeFlags) session(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	var opts []server.ClientOpt
	if f.key != "" {
		signer, err := auth.LoadSigner(f.key)
		if err != nil {
			return nil, err
		}
		opts = append(opts, server.WithSigner(signer))
	}
	client, err := server.NewClient(f.target, opts...)
	if err != nil {
		return nil, err
	}
	return &session{client: client, cfg: cfg, out: cmd.OutOrStdout()}, nil
}

func (f *routeFlags) run(fn func(ctx context.Context, c *session, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := f.session(cmd)
		if err != nil {
			return err
		}
		defer c.client.Close()
		ctx, cancel := context.WithTimeout(cmd.Context(), f.timeout)
		defer cancel()
		return fn(ctx, c, args)
	}
}

func parsePair(args []string) (graph.Node, graph.Node, error) {
	from, err := graph.ParseNode(args[0])
	if err != nil {
		return 0, 0, errors.Wrap(err, "from")
	}
	to, err := graph.ParseNode(args[1])
	if err != nil {
		return 0, 0, errors.Wrap(err, "to")
	}
	return from, to, nil
}
