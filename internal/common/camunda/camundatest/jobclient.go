// Package camundatest provides a worker.JobClient that records the job
// commands a handler sends instead of talking to a gateway.
package camundatest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"google.golang.org/grpc"
)

// JobClient builds the real zeebe commands over an in-memory gateway.
// Set CompleteErr, FailErr or ThrowErr to make the matching Send fail.
type JobClient struct {
	mu          sync.Mutex
	completed   []*pb.CompleteJobRequest
	failed      []*pb.FailJobRequest
	thrown      []*pb.ThrowErrorRequest
	CompleteErr error
	FailErr     error
	ThrowErr    error
}

func NewJobClient() *JobClient {
	return &JobClient{}
}

func noRetry(context.Context, error) bool { return false }

func (c *JobClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	return commands.NewCompleteJobCommand(&gateway{client: c}, noRetry)
}

func (c *JobClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	return commands.NewFailJobCommand(&gateway{client: c}, noRetry)
}

func (c *JobClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	return commands.NewThrowErrorCommand(&gateway{client: c}, noRetry)
}

// Completed returns the complete requests sent successfully.
func (c *JobClient) Completed() []*pb.CompleteJobRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*pb.CompleteJobRequest(nil), c.completed...)
}

// Failed returns the fail requests sent successfully.
func (c *JobClient) Failed() []*pb.FailJobRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*pb.FailJobRequest(nil), c.failed...)
}

// Thrown returns the throw-error requests sent successfully.
func (c *JobClient) Thrown() []*pb.ThrowErrorRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*pb.ThrowErrorRequest(nil), c.thrown...)
}

// Vars decodes a command's JSON variables; invalid JSON yields nil.
func Vars(variables string) map[string]interface{} {
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(variables), &out); err != nil {
		return nil
	}
	return out
}

type gateway struct {
	pb.GatewayClient
	client *JobClient
}

func (g *gateway) CompleteJob(_ context.Context, in *pb.CompleteJobRequest, _ ...grpc.CallOption) (*pb.CompleteJobResponse, error) {
	g.client.mu.Lock()
	defer g.client.mu.Unlock()
	if g.client.CompleteErr != nil {
		return nil, g.client.CompleteErr
	}
	g.client.completed = append(g.client.completed, in)
	return &pb.CompleteJobResponse{}, nil
}

func (g *gateway) FailJob(_ context.Context, in *pb.FailJobRequest, _ ...grpc.CallOption) (*pb.FailJobResponse, error) {
	g.client.mu.Lock()
	defer g.client.mu.Unlock()
	if g.client.FailErr != nil {
		return nil, g.client.FailErr
	}
	g.client.failed = append(g.client.failed, in)
	return &pb.FailJobResponse{}, nil
}

func (g *gateway) ThrowError(_ context.Context, in *pb.ThrowErrorRequest, _ ...grpc.CallOption) (*pb.ThrowErrorResponse, error) {
	g.client.mu.Lock()
	defer g.client.mu.Unlock()
	if g.client.ThrowErr != nil {
		return nil, g.client.ThrowErr
	}
	g.client.thrown = append(g.client.thrown, in)
	return &pb.ThrowErrorResponse{}, nil
}
