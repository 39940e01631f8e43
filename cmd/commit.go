package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/kuoruan/feed-session/internal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	commitSession       string
	commitContinuation  string
	commitUserInitiated bool
)

// mutationBatch is the on-disk form of one mutation. A bare list of
// operations is also accepted.
type mutationBatch struct {
	Context    *internal.MutationContext `yaml:"context"`
	Operations []internal.DataOperation  `yaml:"operations"`
	// Error marks the batch as a failed upstream request.
	Error string `yaml:"error"`
}

// collectingObserver keeps the errors reported while committing
type collectingObserver struct {
	mu   sync.Mutex
	errs []*internal.FeedError
}

func (o *collectingObserver) OnError(_ internal.Session, err *internal.FeedError) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, err)
}

func (o *collectingObserver) reported() []*internal.FeedError {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*internal.FeedError(nil), o.errs...)
}

var commitCmd = &cobra.Command{
	Use:   "commit <batch-file>",
	Short: "Apply a mutation batch to HEAD",
	Long: `Apply a mutation batch to HEAD and every affected session.

The batch is a YAML or JSON document, either a list of operations or an
object with context, operations and error keys. Use "-" to read stdin.

Example batch:
  context:
    user_initiated: true
  operations:
    - structure: {content_id: root, kind: append}
      payload: {kind: feature, feature: {title: Top stories}}
    - structure: {content_id: card-1, parent_content_id: root, kind: append}
      payload: {kind: feature, feature: {title: First card}}
    - structure: {content_id: more, parent_content_id: root, kind: append}
      payload: {kind: token, token: {next_page_token: page-2}}

Examples:
  feed-session commit batch.yaml
  feed-session commit page2.yaml --session <token> --continuation more
  cat batch.json | feed-session commit -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batch, err := readMutationBatch(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}

		mctx := batch.Context
		if commitSession != "" || commitContinuation != "" || commitUserInitiated {
			if mctx == nil {
				mctx = &internal.MutationContext{}
			}
			if commitSession != "" {
				mctx.RequestingSessionID = commitSession
			}
			if commitContinuation != "" {
				mctx.ContinuationToken = &internal.StreamToken{ContentID: commitContinuation}
			}
			if commitUserInitiated {
				mctx.UserInitiated = true
			}
		}

		res := internal.Success(batch.Operations...)
		if batch.Error != "" {
			res = internal.Failure(errors.New(batch.Error))
		}

		observer := &collectingObserver{}
		feed, err := openFeed(cmd.Context(), internal.Options{Observer: observer})
		if err != nil {
			return err
		}
		defer func() { _ = feed.Close() }()

		if err := feed.Commit(cmd.Context(), mctx, res); err != nil {
			return fmt.Errorf("commit failed: %w", err)
		}

		out := cmd.OutOrStdout()
		for _, ferr := range observer.reported() {
			fmt.Fprintln(out, warningStyle.Render("⚠️  "+ferr.Error()))
		}
		if !res.IsSuccess() {
			return fmt.Errorf("mutation failed: %s", batch.Error)
		}

		stats, err := feed.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Committed %d operation(s)", len(batch.Operations))))
		if stats.Committer.InvalidOps > 0 {
			fmt.Fprintln(out, warningStyle.Render(fmt.Sprintf("⚠️  Skipped %d invalid operation(s)", stats.Committer.InvalidOps)))
		}
		fmt.Fprintf(out, "   HEAD size: %d\n", stats.Head.Size)
		return nil
	},
}

// readMutationBatch decodes a batch from path, or from stdin when path is "-"
func readMutationBatch(stdin io.Reader, path string) (*mutationBatch, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse batch: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("batch %s is empty", path)
	}

	batch := &mutationBatch{}
	node := doc.Content[0]
	if node.Kind == yaml.SequenceNode {
		err = node.Decode(&batch.Operations)
	} else {
		err = node.Decode(batch)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode batch: %w", err)
	}
	return batch, nil
}

func init() {
	rootCmd.AddCommand(commitCmd)
	commitCmd.Flags().StringVar(&commitSession, "session", "", "Session that requested the mutation")
	commitCmd.Flags().StringVar(&commitContinuation, "continuation", "", "Content id of the pagination token this batch continues")
	commitCmd.Flags().BoolVar(&commitUserInitiated, "user-initiated", false, "Mark the mutation as user initiated")
}
