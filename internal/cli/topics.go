package cli

import (
	"fmt"
	"time"

	"fbdevops/internal/client"
	"fbdevops/internal/pubsub"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
)

var errNoTopics = errors.New("no topics given, pass names or set PUBSUB_TOPICS")

// withTopics opens a Pub/Sub client for the duration of fn.
func (a *App) withTopics(cmd *cobra.Command, fn func(*pubsub.Topics) error) error {
	c, err := client.PubSub(cmd.Context(), a.Config)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(pubsub.New(c, a.Log))
}

func (a *App) topicNames(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if len(a.Config.PubSubTopics) == 0 {
		return nil, errNoTopics
	}
	return a.Config.PubSubTopics, nil
}

func (a *App) checkTopicsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-topics [topic...]",
		Short: "Report which required topics exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := a.topicNames(args)
			if err != nil {
				return err
			}
			return a.withTopics(cmd, func(t *pubsub.Topics) error {
				statuses, err := t.Check(cmd.Context(), names)
				if err != nil {
					return err
				}
				var missing int
				for _, s := range statuses {
					mark := "✅"
					if !s.Exists {
						mark = "❌"
						missing++
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", mark, s.Name)
				}
				if missing > 0 {
					return errors.Errorf("%d topics missing", missing)
				}
				return nil
			})
		},
	}
}

func (a *App) createTopicCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-topic NAME",
		Short: "Create a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTopics(cmd, func(t *pubsub.Topics) error {
				return t.Create(cmd.Context(), args[0])
			})
		},
	}
}

func (a *App) createTopicsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-topics [topic...]",
		Short: "Create every missing topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := a.topicNames(args)
			if err != nil {
				return err
			}
			return a.withTopics(cmd, func(t *pubsub.Topics) error {
				created, err := t.CreateAll(cmd.Context(), names)
				fmt.Fprintf(cmd.OutOrStdout(), "created %d of %d topics\n", len(created), len(names))
				return err
			})
		},
	}
}

func (a *App) ensureTopicsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure-topics [topic...]",
		Short: "Create missing topics and their default subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := a.topicNames(args)
			if err != nil {
				return err
			}
			return a.withTopics(cmd, func(t *pubsub.Topics) error {
				return t.Ensure(cmd.Context(), names)
			})
		},
	}
}

func (a *App) testPubSubCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "test-pubsub TOPIC",
		Short: "Publish a test message and wait for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTopics(cmd, func(t *pubsub.Topics) error {
				res, err := t.Test(cmd.Context(), args[0], timeout)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ message %s received in %s\n", res.ID, res.Latency.Round(time.Millisecond))
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "How long to wait for the message")
	return cmd
}
