package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddress_Idempotent(t *testing.T) {
	for _, addr := range []string{"0xAbCd", " 0XFF00 ", "0xabc", ""} {
		once := NormalizeAddress(addr)
		assert.Equal(t, once, NormalizeAddress(once), addr)
	}
	assert.Equal(t, "0xaabb", NormalizeAddress("0xAaBB"))
}

func TestWalletRecord_Addresses(t *testing.T) {
	w := WalletRecord{
		SmartAccountAddress: "0xAA",
		AccountShuffling:    []ShuffledAccount{{SmartAccountAddress: "0xBB"}, {}},
	}
	assert.Equal(t, []string{"0xaa", "0xbb"}, w.Addresses())
}

func TestGroupEquality(t *testing.T) {
	assert.Equal(t, RoleGroup("attacker"), RoleGroup("attacker"))
	assert.NotEqual(t, WalletGroup(7), IndexGroup(7))
	assert.Equal(t, "wallet:7", WalletGroup(7).String())
}

func TestStageError_Unwrap(t *testing.T) {
	inner := &InsufficientLabelsError{TrueClasses: 1, PredClasses: 3}
	err := fmt.Errorf("outer: %w", &StageError{Stage: "evaluate", Err: inner})

	assert.True(t, IsInsufficientLabels(err))
	var stage *StageError
	assert.True(t, errors.As(err, &stage))
	assert.Equal(t, "evaluate", stage.Stage)
	assert.Contains(t, err.Error(), "stage evaluate")
}
