package compute

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/chess-vn/slduel/internal/domains/dtos"
)

// RecordDuelResult hands a finished duel to the duel-ended function. The
// invocation is asynchronous; only the enqueue is awaited.
func (client *Client) RecordDuelResult(ctx context.Context, result dtos.DuelResultEvent) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal duel result: %w", err)
	}
	_, err = client.lambda.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   client.cfg.DuelEndedFunctionName,
		Payload:        payload,
		InvocationType: types.InvocationTypeEvent,
	})
	if err != nil {
		return fmt.Errorf("failed to invoke duel ended function: %w", err)
	}
	return nil
}
