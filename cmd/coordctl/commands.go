package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fleet-coord/internal/app"
	"fleet-coord/middleware/coord/domain"
	"fleet-coord/middleware/coord/infra"

	"github.com/spf13/cobra"
)

type cli struct {
	configPath string
	rt         *app.Runtime
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "coordctl",
		Short:         "Operate fleet coordination primitives on the shared store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := app.Bootstrap(cmd.Context(), c.configPath)
			if err != nil {
				return err
			}
			if err := rt.Config.ValidateStore(); err != nil {
				_ = rt.Close()
				return err
			}
			c.rt = rt
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.rt == nil {
				return nil
			}
			return c.rt.Close()
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file (env vars override it)")

	root.AddCommand(c.bufferCmd(), c.limitCmd(), c.semCmd(), c.resetCmd())
	return root
}

func (c *cli) bufferCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "buffer", Short: "Deduplicated content queue"}

	var attrs []string
	put := &cobra.Command{
		Use:   "put GROUP TEXT...",
		Short: "Enqueue one item per TEXT argument",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			attributes, err := parseAttrs(attrs)
			if err != nil {
				return err
			}
			items := make([]domain.Item, 0, len(args)-1)
			for _, text := range args[1:] {
				items = append(items, domain.Item{Group: args[0], Text: text, Attributes: attributes})
			}
			return printJSON(cmd, c.rt.Queue().PutMany(cmd.Context(), items))
		},
	}
	put.Flags().StringSliceVar(&attrs, "attr", nil, "attribute key=value (repeatable)")

	var consumer string
	pop := &cobra.Command{
		Use:   "pop GROUP",
		Short: "Serve the next item (novel for --consumer when given)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, ok := c.rt.ContentPool().Serve(cmd.Context(), args[0], consumer)
			if !ok {
				return errors.New("queue is empty")
			}
			return printJSON(cmd, item)
		},
	}
	pop.Flags().StringVar(&consumer, "consumer", "", "consumer id for novelty filtering")

	size := &cobra.Command{
		Use:   "size GROUP",
		Short: "Number of queued hashes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), c.rt.Queue().Size(cmd.Context(), args[0]))
			return err
		},
	}

	cmd.AddCommand(put, pop, size)
	return cmd
}

func (c *cli) limitCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "limit", Short: "Fleet-wide rate limiter"}

	var route, method string
	check := &cobra.Command{
		Use:   "check IDENTITY",
		Short: "Count one request for IDENTITY and print the decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rl, _ := c.rt.RateLimiter()
			return printJSON(cmd, rl.CheckLimit(cmd.Context(), args[0], route, strings.ToUpper(method)))
		},
	}
	check.Flags().StringVar(&route, "route", "/", "route label")
	check.Flags().StringVar(&method, "method", http.MethodGet, "request method")

	cmd.AddCommand(check)
	return cmd
}

func (c *cli) semCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "sem", Short: "Distributed counting semaphore"}

	var limit int
	var ttl time.Duration
	acquire := &cobra.Command{
		Use:   "acquire NAME",
		Short: "Take a slot and print its token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, ok := c.rt.Semaphore().Acquire(cmd.Context(), args[0], limit, ttl)
			if !ok {
				return fmt.Errorf("semaphore %q is full (max %d)", args[0], limit)
			}
			return printJSON(cmd, tok)
		},
	}
	acquire.Flags().IntVar(&limit, "max", 1, "maximum concurrent holders")
	acquire.Flags().DurationVar(&ttl, "ttl", time.Minute, "holder lifetime without refresh")

	release := &cobra.Command{
		Use:   "release NAME MEMBER",
		Short: "Return a slot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := c.rt.Semaphore().Release(cmd.Context(), domain.Token{Name: args[0], Member: args[1]})
			return res.Err
		},
	}

	holders := &cobra.Command{
		Use:   "holders NAME",
		Short: "Count current holders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := c.rt.Semaphore().Holders(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	}

	cmd.AddCommand(acquire, release, holders)
	return cmd
}

func (c *cli) resetCmd() *cobra.Command {
	var prefix string
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every key under a prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if prefix == "" {
				prefix = c.rt.Keys.Prefix() + ":"
			}
			if !yes {
				return fmt.Errorf("refusing to delete keys under %q without --yes", prefix)
			}
			n, err := infra.ResetPrefix(cmd.Context(), c.rt.Store, prefix)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d keys\n", n)
			return err
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "key prefix (default: configured KEY_PREFIX)")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func parseAttrs(in []string) (map[string]string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(in))
	for _, kv := range in {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --attr %q (want key=value)", kv)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
