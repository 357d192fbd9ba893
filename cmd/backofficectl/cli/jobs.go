package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/backoffice/jobs"
)

var timeNow = func() time.Time { return time.Now().UTC() }

// JobsCLI wraps manual management helpers for the background queue.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewJobsCLI connects the client and inspector to redis.
func NewJobsCLI(opts asynq.RedisClientOpt) *JobsCLI {
	return &JobsCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	return errors.Join(c.inspector.Close(), c.client.Close())
}

// Trigger enqueues a supported job by task type.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	switch name {
	case jobs.TaskIdempotencyCleanup:
		task, err := jobs.NewIdempotencyCleanupTask(timeNow())
		if err != nil {
			return nil, err
		}
		return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(1))
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueue reports counters for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	return QueueStats{
		Queue:     jobs.QueueDefault,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Archived:  info.Archived,
	}, nil
}

func jobsCmd(connect Connector) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Background queue helpers",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "trigger <task-type>",
			Short: "Enqueue a job now (supported: " + jobs.TaskIdempotencyCleanup + ")",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEnv(cmd, connect, func(ctx context.Context, env *Env) error {
					if env.Jobs == nil {
						return errNotConfigured("jobs")
					}
					info, err := env.Jobs.Trigger(ctx, args[0])
					if err != nil {
						return err
					}
					printf(cmd.OutOrStdout(), "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Show default queue counters",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withEnv(cmd, connect, func(ctx context.Context, env *Env) error {
					if env.Jobs == nil {
						return errNotConfigured("jobs")
					}
					s, err := env.Jobs.InspectQueue(ctx)
					if err != nil {
						return err
					}
					printf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
						s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
					return nil
				})
			},
		},
	)
	return cmd
}
