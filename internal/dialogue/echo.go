package dialogue

import (
	"context"
	"fmt"
)

// EchoGenerator repeats the caller back. Used for local runs and load tests.
type EchoGenerator struct{}

func (EchoGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("You said: %s", req.UserText), nil
}
