package tx

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type Signer interface {
	Address() common.Address
	SignTx(ctx context.Context, tx *types.Transaction) (*types.Transaction, error)
}

type Review struct {
	Action string
	From   common.Address
	To     common.Address
	Value  *big.Int
	Gas    uint64
	Data   []byte
}

type Prompt func(ctx context.Context, review Review) (bool, error)

// ConfirmingSigner asks Prompt before every signature. A declined prompt is
// reported as ErrUserRejected and nothing is signed.
type ConfirmingSigner struct {
	Signer
	prompt Prompt
}

func NewConfirmingSigner(signer Signer, prompt Prompt) *ConfirmingSigner {
	return &ConfirmingSigner{Signer: signer, prompt: prompt}
}

func (s *ConfirmingSigner) SignTx(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	return s.SignReviewed(ctx, "", tx)
}

func (s *ConfirmingSigner) SignReviewed(ctx context.Context, action string, tx *types.Transaction) (*types.Transaction, error) {
	if s.prompt != nil {
		review := Review{
			Action: action,
			From:   s.Address(),
			Value:  tx.Value(),
			Gas:    tx.Gas(),
			Data:   tx.Data(),
		}
		if to := tx.To(); to != nil {
			review.To = *to
		}
		ok, err := s.prompt(ctx, review)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrUserRejected
		}
	}
	return s.Signer.SignTx(ctx, tx)
}

type reviewedSigner interface {
	SignReviewed(ctx context.Context, action string, tx *types.Transaction) (*types.Transaction, error)
}

func sign(ctx context.Context, signer Signer, action string, tx *types.Transaction) (*types.Transaction, error) {
	if rs, ok := signer.(reviewedSigner); ok {
		return rs.SignReviewed(ctx, action, tx)
	}
	return signer.SignTx(ctx, tx)
}
