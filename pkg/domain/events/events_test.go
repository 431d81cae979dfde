package events

import (
	"encoding/json"
	"testing"

	"github.com/amirasaad/carefund/pkg/domain/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypes_ConstructorsMatchType(t *testing.T) {
	t.Parallel()
	for name, ctor := range EventTypes {
		assert.Equal(t, name, ctor().Type())
	}
}

func TestDecodeThroughRegistry(t *testing.T) {
	t.Parallel()
	entry, err := ledger.NewEntry(uuid.New(), uuid.New(), decimal.NewFromInt(50), decimal.NewFromInt(50),
		"TRANSFER_1", "groceries", "Incoming", ledger.Metadata{})
	require.NoError(t, err)

	in := TransferCompleted{Reference: "TRANSFER_1", Incoming: Snapshot(entry)}
	raw, err := json.Marshal(in)
	require.NoError(t, err)

	out := EventTypes[in.Type()]()
	require.NoError(t, json.Unmarshal(raw, out))
	got, ok := out.(*TransferCompleted)
	require.True(t, ok)
	assert.Equal(t, "TRANSFER_1", got.Reference)
	assert.True(t, got.Incoming.BalanceAfter.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, "credit", got.Incoming.Type)
}
