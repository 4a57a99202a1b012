package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
)

func TestCallEmptyOutputIsNoData(t *testing.T) {
	_, err := Call(context.Background(), &stubReader{}, ethereum.CallMsg{})
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestCallProviderNoDataText(t *testing.T) {
	reader := &stubReader{callErr: errors.New(`contract call returned no data ("0x")`)}
	_, err := Call(context.Background(), reader, ethereum.CallMsg{})
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestCallPassesThroughOtherErrors(t *testing.T) {
	reader := &stubReader{callErr: errors.New("503 service unavailable")}
	_, err := Call(context.Background(), reader, ethereum.CallMsg{})
	if err == nil || errors.Is(err, ErrNoData) {
		t.Fatalf("expected plain error, got %v", err)
	}
}

func TestCallReturnsOutput(t *testing.T) {
	out, err := Call(context.Background(), &stubReader{callOut: []byte{1, 2}}, ethereum.CallMsg{})
	if err != nil || len(out) != 2 {
		t.Fatalf("unexpected result %v %v", out, err)
	}
}

func TestIsNoDataRecognisesNoCode(t *testing.T) {
	if !IsNoData(bind.ErrNoCode) {
		t.Fatalf("expected bind.ErrNoCode to be no data")
	}
	if IsNoData(nil) {
		t.Fatalf("nil is not no data")
	}
}
