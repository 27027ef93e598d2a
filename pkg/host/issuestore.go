package host

import (
	"context"
	"fmt"
	"strconv"

	"codepilot/pkg/plan"
)

// IssueStore keeps the plan embedded in a GitHub issue body, between HTML
// comment markers. Text outside the markers (the human discussion) is
// preserved verbatim on every write.
type IssueStore struct {
	client *Client
}

// NewIssueStore creates a store backed by the client's repository.
func NewIssueStore(client *Client) *IssueStore {
	return &IssueStore{client: client}
}

// ReadPlan extracts the plan block from the issue body. ref is the issue
// number in decimal.
func (s *IssueStore) ReadPlan(ctx context.Context, ref string) (plan.TaskPlan, bool, error) {
	number, err := issueNumber(ref)
	if err != nil {
		return plan.TaskPlan{}, false, err
	}
	body, err := s.client.ReadIssueBody(ctx, number)
	if err != nil {
		return plan.TaskPlan{}, false, err
	}
	return plan.Extract(body)
}

// WritePlan re-embeds the plan into the issue body, read-modify-write so
// concurrent human edits outside the block survive.
func (s *IssueStore) WritePlan(ctx context.Context, ref string, p plan.TaskPlan) error {
	number, err := issueNumber(ref)
	if err != nil {
		return err
	}
	body, err := s.client.ReadIssueBody(ctx, number)
	if err != nil {
		return err
	}
	updated, err := plan.Embed(body, p)
	if err != nil {
		return fmt.Errorf("embed plan in issue %d: %w", number, err)
	}
	return s.client.WriteIssueBody(ctx, number, updated)
}

func issueNumber(ref string) (int, error) {
	n, err := strconv.Atoi(ref)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("plan ref %q is not an issue number", ref)
	}
	return n, nil
}
