package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"yieldguard/internal/config"
	"yieldguard/internal/looping"
	"yieldguard/internal/tx"
)

func stdinPrompt(in io.Reader, out io.Writer, cfg *config.Config) tx.Prompt {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, review tx.Review) (bool, error) {
		fmt.Fprintln(out, describeReview(cfg, review))
		fmt.Fprint(out, "sign and send? [y/N] ")
		answer := make(chan string, 1)
		go func() {
			line, _ := reader.ReadString('\n')
			answer <- line
		}()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case line := <-answer:
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				return true, nil
			}
			return false, nil
		}
	}
}

func describeReview(cfg *config.Config, review tx.Review) string {
	var b strings.Builder
	action := review.Action
	if action == "" {
		action = "transaction"
	}
	fmt.Fprintf(&b, "%s on chain %d\n", action, cfg.Chains.Destination)
	fmt.Fprintf(&b, "  from  %s\n", review.From.Hex())
	fmt.Fprintf(&b, "  to    %s\n", review.To.Hex())
	if review.Value != nil && review.Value.Sign() > 0 {
		fmt.Fprintf(&b, "  value %s ETH\n", looping.FormatUnits(review.Value, 18))
	}
	fmt.Fprintf(&b, "  gas   %d\n", review.Gas)
	if len(review.Data) >= 4 {
		fmt.Fprintf(&b, "  call  %s", hexutil.Encode(review.Data[:4]))
	}
	return strings.TrimRight(b.String(), "\n")
}
