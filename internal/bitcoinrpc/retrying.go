package bitcoinrpc

import (
	"context"

	"github.com/sv2d/sv2d/internal/recovery"
)

// RetryingClient wraps Client so every call goes through a recovery
// executor (retry with backoff + circuit breaker), rather than failing the
// caller on the first transient network blip.
type RetryingClient struct {
	inner *Client
	exec  *recovery.Executor
}

// NewRetrying wraps client with exec.
func NewRetrying(client *Client, exec *recovery.Executor) *RetryingClient {
	return &RetryingClient{inner: client, exec: exec}
}

func (r *RetryingClient) GetBlockchainInfo(ctx context.Context) (*BlockchainInfo, error) {
	v, err := r.exec.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return r.inner.GetBlockchainInfo(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*BlockchainInfo), nil
}

func (r *RetryingClient) GetNetworkInfo(ctx context.Context) (*NetworkInfo, error) {
	v, err := r.exec.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return r.inner.GetNetworkInfo(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*NetworkInfo), nil
}

func (r *RetryingClient) GetBlockTemplate(ctx context.Context) (*BlockTemplate, error) {
	v, err := r.exec.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return r.inner.GetBlockTemplate(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*BlockTemplate), nil
}

func (r *RetryingClient) SubmitBlock(ctx context.Context, blockHex string) error {
	_, err := r.exec.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, r.inner.SubmitBlock(ctx, blockHex)
	})
	return err
}
