package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gavelhq/gavel/internal/domain"
)

var (
	alice    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000002")
	operator = common.HexToAddress("0x00000000000000000000000000000000000000e0")
)

func TestRegistryMintAndTransfer(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	r.Mint(1, alice, operator)

	owner, err := r.OwnerOf(ctx, 1)
	if err != nil {
		t.Fatalf("OwnerOf: %v", err)
	}
	if owner != alice {
		t.Errorf("owner = %s, want %s", owner.Hex(), alice.Hex())
	}

	ok, err := r.IsApprovedForAll(ctx, alice, operator)
	if err != nil || !ok {
		t.Errorf("IsApprovedForAll = %v, %v, want true", ok, err)
	}

	if err := r.TransferFrom(ctx, alice, bob, 1); err != nil {
		t.Fatalf("TransferFrom: %v", err)
	}
	owner, _ = r.OwnerOf(ctx, 1)
	if owner != bob {
		t.Errorf("owner after transfer = %s, want %s", owner.Hex(), bob.Hex())
	}
}

func TestRegistryTransferRequiresHolder(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	r.Mint(1, alice, operator)

	if err := r.TransferFrom(ctx, bob, alice, 1); err == nil {
		t.Fatal("TransferFrom from non-holder succeeded, want error")
	}
	if err := r.TransferFrom(ctx, alice, bob, 99); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("TransferFrom unknown asset = %v, want ErrNotFound", err)
	}
}

func TestRegistryTransferClearsApproval(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	r.Mint(1, alice, common.Address{})
	r.Approve(1, operator)

	approved, _ := r.GetApproved(ctx, 1)
	if approved != operator {
		t.Fatalf("GetApproved = %s, want %s", approved.Hex(), operator.Hex())
	}

	if err := r.TransferFrom(ctx, alice, bob, 1); err != nil {
		t.Fatalf("TransferFrom: %v", err)
	}
	approved, _ = r.GetApproved(ctx, 1)
	if approved != (common.Address{}) {
		t.Errorf("approval not cleared after transfer: %s", approved.Hex())
	}
}
