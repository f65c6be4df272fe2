package streamops_test

import (
	"context"
	"fmt"
	"time"

	streamops "github.com/streamops/streamops"
	"github.com/streamops/streamops/internal/gateway"
)

// Example runs a three-step workflow end to end inside one process.
func Example() {
	ctx := context.Background()

	stack, err := streamops.NewLocalStack(streamops.LocalStackConfig{})
	if err != nil {
		panic(err)
	}
	if err := stack.Start(ctx); err != nil {
		panic(err)
	}
	defer stack.Stop()

	wf, err := stack.Gateway.CreateWorkflow(ctx, gateway.CreateWorkflowInput{
		Name:     "Order Processing",
		Steps:    []string{"validate", "charge", "ship"},
		Priority: streamops.PriorityHigh,
	})
	if err != nil {
		panic(err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	final, err := stack.WaitForWorkflow(waitCtx, wf.ID)
	if err != nil {
		panic(err)
	}

	fmt.Println(final.Status)
	// Output: completed
}
